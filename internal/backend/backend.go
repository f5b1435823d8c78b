// Package backend implements the completion execution paths (local llama.cpp
// on an accelerator or CPU, OpenAI-compatible HTTP, Gemini HTTP) behind one
// capability interface, plus the selector that ranks them.
package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ghostd/pkg/types"
)

// Backend generates a completion for one snapshot. Implementations must
// return promptly once ctx is done when the transport allows it; callers do
// not rely on it.
type Backend interface {
	Generate(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error)
	// Close releases runtime resources (loaded models, idle connections).
	Close() error
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error)

func (f Func) Generate(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error) {
	return f(ctx, snap, p)
}

func (Func) Close() error { return nil }

// CredentialResolver turns an opaque credential handle into a secret.
// Hosts install their own to read from a keyring or secret store.
type CredentialResolver interface {
	Resolve(handle string) (string, error)
}

// EnvResolver understands "env:NAME" and "literal:VALUE" handles.
type EnvResolver struct{}

func (EnvResolver) Resolve(handle string) (string, error) {
	switch {
	case handle == "":
		return "", nil
	case strings.HasPrefix(handle, "env:"):
		name := strings.TrimPrefix(handle, "env:")
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return "", fmt.Errorf("credential env var %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(handle, "literal:"):
		return strings.TrimPrefix(handle, "literal:"), nil
	}
	return "", fmt.Errorf("unsupported credential handle %q", handle)
}
