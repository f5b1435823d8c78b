//go:build llama

package backend

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt reports whether this binary links llama.cpp.
const LlamaBuilt = true

type llamaRuntime struct{}

// NewLlamaRuntime returns the llama.cpp runtime.
func NewLlamaRuntime() Runtime { return llamaRuntime{} }

type llamaModel struct {
	m *llama.LLama
}

func (llamaRuntime) Load(modelPath string, opts LoadOptions) (Model, error) {
	mo := []llama.ModelOption{llama.SetContext(zn(opts.CtxSize, 2048))}
	if opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(opts.GPULayers))
	}
	if opts.MainGPU != "" {
		mo = append(mo, llama.SetMainGPU(opts.MainGPU))
	}
	m, err := llama.New(modelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaModel{m: m}, nil
}

func (l *llamaModel) Predict(ctx context.Context, prompt string, opts PredictOptions) (string, error) {
	if l.m == nil {
		return "", errors.New("llama model not initialized")
	}
	var out strings.Builder
	l.m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if !LeakedToken(tok) {
			out.WriteString(tok)
		}
		return true
	})
	_, err := l.m.Predict(prompt, predictOptions(opts)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return out.String(), nil
}

func (l *llamaModel) Close() error {
	if l.m != nil {
		l.m.Free()
		l.m = nil
	}
	return nil
}

func predictOptions(opts PredictOptions) []llama.PredictOption {
	return []llama.PredictOption{
		llama.SetTokens(max(1, opts.MaxTokens)),
		llama.SetThreads(max(1, opts.Threads)),
		llama.SetTemperature(zf(opts.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetTopK(1),
	}
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
