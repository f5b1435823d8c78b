package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ghostd/pkg/types"
)

func TestPool_LoadsOncePerDescriptor(t *testing.T) {
	var opens int32
	gate := make(chan struct{})
	p := NewPool(OpenerFunc(func(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error) {
		atomic.AddInt32(&opens, 1)
		<-gate
		return Func(func(context.Context, types.ContextSnapshot, Params) (string, error) { return "ok", nil }), nil
	}), zerolog.Nop())
	d := types.BackendDescriptor{ID: CPUID, Kind: types.BackendLocalCPU}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := p.Get(context.Background(), d)
			if err != nil || b == nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	if n := atomic.LoadInt32(&opens); n != 1 {
		t.Fatalf("opens=%d", n)
	}
	if ids := p.Loaded(); len(ids) != 1 || ids[0] != CPUID {
		t.Fatalf("loaded=%v", ids)
	}
}

func TestPool_FailedLoadIsRetried(t *testing.T) {
	var opens int32
	p := NewPool(OpenerFunc(func(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error) {
		if atomic.AddInt32(&opens, 1) == 1 {
			return nil, ErrUnavailable(d.ID, "not yet")
		}
		return Func(nil), nil
	}), zerolog.Nop())
	d := types.BackendDescriptor{ID: CPUID, Kind: types.BackendLocalCPU}
	if _, err := p.Get(context.Background(), d); err == nil {
		t.Fatalf("expected first load to fail")
	}
	if _, err := p.Get(context.Background(), d); err != nil {
		t.Fatalf("second load: %v", err)
	}
}

func TestPool_WaiterHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	p := NewPool(OpenerFunc(func(types.BackendDescriptor, types.ProviderConfig) (Backend, error) {
		<-gate
		return Func(nil), nil
	}), zerolog.Nop())
	d := types.BackendDescriptor{ID: "gpu:0", Kind: types.BackendLocalAccelerated}
	go func() { _, _ = p.Get(context.Background(), d) }()
	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx, d); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestPool_SetProviderDropsRemote(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	p := NewPool(OpenerFunc(func(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error) {
		mu.Lock()
		seen = append(seen, pc.Model)
		mu.Unlock()
		return Func(nil), nil
	}), zerolog.Nop())
	remote := types.BackendDescriptor{ID: "remote:openai", Kind: types.BackendRemoteHTTP, Provider: "openai"}
	local := types.BackendDescriptor{ID: CPUID, Kind: types.BackendLocalCPU}
	p.SetProvider(types.ProviderConfig{Provider: types.ProviderOpenAI, Model: "a"})
	_, _ = p.Get(context.Background(), remote)
	_, _ = p.Get(context.Background(), local)
	p.SetProvider(types.ProviderConfig{Provider: types.ProviderOpenAI, Model: "b"})
	_, _ = p.Get(context.Background(), remote)
	_, _ = p.Get(context.Background(), local)
	if len(seen) != 3 || seen[2] != "b" {
		t.Fatalf("opens=%v", seen)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type fakeRuntime struct {
	loadErr error
	opts    LoadOptions
	model   *fakeModel
}

func (r *fakeRuntime) Load(path string, opts LoadOptions) (Model, error) {
	r.opts = opts
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.model, nil
}

type fakeModel struct {
	out    string
	prompt string
	opts   PredictOptions
	block  chan struct{}
	closed bool
}

func (m *fakeModel) Predict(ctx context.Context, prompt string, opts PredictOptions) (string, error) {
	m.prompt, m.opts = prompt, opts
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.out, nil
}

func (m *fakeModel) Close() error { m.closed = true; return nil }

func gpuDescriptor() types.BackendDescriptor {
	return types.BackendDescriptor{ID: "gpu:0", Kind: types.BackendLocalAccelerated, Device: &types.Device{ID: "0", Vendor: types.VendorNVIDIA}}
}

func TestOpenLocal_AcceleratorLoadFailure(t *testing.T) {
	rt := &fakeRuntime{loadErr: errors.New("CUDA out of memory")}
	_, err := OpenLocal(rt, gpuDescriptor(), "/m.gguf", LoadOptions{})
	if !IsAcceleratorLoad(err) {
		t.Fatalf("expected accelerator load failure, got %v", err)
	}
	if rt.opts.MainGPU != "0" || rt.opts.GPULayers != 99 {
		t.Fatalf("opts=%+v", rt.opts)
	}
	_, err = OpenLocal(rt, types.BackendDescriptor{ID: CPUID, Kind: types.BackendLocalCPU}, "/m.gguf", LoadOptions{GPULayers: 20})
	if Classify(err) != types.FailureBackendUnavailable || rt.opts.GPULayers != 0 {
		t.Fatalf("cpu err=%v opts=%+v", err, rt.opts)
	}
}

func TestLocal_GenerateUsesFIMPromptAndSanitizes(t *testing.T) {
	m := &fakeModel{out: "return x<|file_sep|>  \n"}
	l, err := OpenLocal(&fakeRuntime{model: m}, gpuDescriptor(), "/m.gguf", LoadOptions{Threads: 4})
	if err != nil {
		t.Fatal(err)
	}
	snap := types.ContextSnapshot{Prefix: "def f(x):\n    ", Suffix: "\n"}
	text, err := l.Generate(context.Background(), snap, Params{MaxTokens: 128, FIMMaxTokens: 50})
	if err != nil {
		t.Fatal(err)
	}
	if text != "return x" || m.prompt != Prompt(snap) || m.opts.MaxTokens != 50 || m.opts.Threads != 4 {
		t.Fatalf("text=%q prompt=%q opts=%+v", text, m.prompt, m.opts)
	}
	_ = l.Close()
	if !m.closed {
		t.Fatalf("model not closed")
	}
}

func TestLocal_OnePredictionAtATime(t *testing.T) {
	m := &fakeModel{out: "x", block: make(chan struct{})}
	l, _ := OpenLocal(&fakeRuntime{model: m}, types.BackendDescriptor{ID: CPUID, Kind: types.BackendLocalCPU}, "/m.gguf", LoadOptions{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = l.Generate(context.Background(), types.ContextSnapshot{Prefix: "a"}, Params{})
		close(done)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Generate(ctx, types.ContextSnapshot{Prefix: "b"}, Params{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second call to wait and time out, got %v", err)
	}
	close(m.block)
	<-done
}
