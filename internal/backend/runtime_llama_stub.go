//go:build !llama

package backend

// This file keeps default builds CGO-free. The llama.cpp runtime lives in
// runtime_llama.go behind the 'llama' build tag.

// LlamaBuilt reports whether this binary links llama.cpp.
const LlamaBuilt = false

type llamaRuntime struct{}

// NewLlamaRuntime returns a runtime that refuses to load models.
func NewLlamaRuntime() Runtime { return llamaRuntime{} }

func (llamaRuntime) Load(modelPath string, opts LoadOptions) (Model, error) {
	return nil, ErrUnavailable("llama", "llama support not built (missing 'llama' build tag)")
}
