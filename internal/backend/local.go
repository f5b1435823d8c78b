package backend

import (
	"context"
	"errors"
	"strings"

	"ghostd/pkg/types"
)

// Runtime loads model files for local inference.
type Runtime interface {
	Load(modelPath string, opts LoadOptions) (Model, error)
}

// LoadOptions configure a model load.
type LoadOptions struct {
	CtxSize   int
	Threads   int
	GPULayers int
	// MainGPU selects the accelerator; empty for CPU.
	MainGPU string
}

// Model is one loaded model handle.
type Model interface {
	// Predict generates from prompt. Implementations stop at the next token
	// once ctx is done.
	Predict(ctx context.Context, prompt string, opts PredictOptions) (string, error)
	Close() error
}

// PredictOptions are per-call generation parameters.
type PredictOptions struct {
	MaxTokens   int
	Temperature float32
	Threads     int
}

// Local runs a loaded model on this machine. One prediction runs at a time;
// waiters give up when their context ends.
type Local struct {
	desc    types.BackendDescriptor
	model   Model
	threads int
	slot    chan struct{}
}

// OpenLocal loads modelPath with rt for descriptor d. Load failures on an
// accelerator are reported as AcceleratorLoad so the selector can fall back.
func OpenLocal(rt Runtime, d types.BackendDescriptor, modelPath string, opts LoadOptions) (*Local, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, ErrUnavailable(d.ID, "model path is empty")
	}
	if d.Kind == types.BackendLocalAccelerated && d.Device != nil {
		opts.MainGPU = d.Device.ID
		if opts.GPULayers <= 0 {
			opts.GPULayers = 99
		}
	} else {
		opts.GPULayers = 0
		opts.MainGPU = ""
	}
	m, err := rt.Load(modelPath, opts)
	if err != nil {
		var be *Error
		if errors.As(err, &be) {
			return nil, err
		}
		if d.Kind == types.BackendLocalAccelerated {
			return nil, ErrAcceleratorLoad(d.ID, err)
		}
		return nil, ErrUnavailable(d.ID, err.Error())
	}
	return &Local{desc: d, model: m, threads: opts.Threads, slot: make(chan struct{}, 1)}, nil
}

func (l *Local) Generate(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error) {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.slot }()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := l.model.Predict(ctx, Prompt(snap), PredictOptions{
		MaxTokens:   TokenBudget(snap, p),
		Temperature: p.Temperature,
		Threads:     l.threads,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newError(types.FailureBadResponse, l.desc.ID, err)
	}
	return Sanitize(out, snap.FIM()), nil
}

func (l *Local) Close() error {
	if l.model == nil {
		return nil
	}
	err := l.model.Close()
	l.model = nil
	return err
}
