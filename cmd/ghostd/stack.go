package main

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"ghostd/internal/backend"
	"ghostd/internal/cache"
	"ghostd/internal/coordinator"
	"ghostd/internal/document"
	"ghostd/internal/registry"
	"ghostd/internal/watchdog"
	"ghostd/pkg/types"
)

// stack is the wired coordinator with everything it owns.
type stack struct {
	docs   *document.Store
	sel    *backend.Selector
	pool   *backend.Pool
	cache  *cache.Suggestions
	events *coordinator.Broadcaster
	coord  *coordinator.Coordinator
}

// detectDevices enumerates accelerators, honoring cpu_only.
func (a *app) detectDevices(ctx context.Context) (*backend.Selector, error) {
	var enum backend.DeviceEnumerator = backend.SystemDevices{}
	if a.cfg.Local.CPUOnly {
		enum = backend.StaticDevices(nil)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	devices, err := enum.Devices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		a.log.Debug().Str("id", d.ID).Str("name", d.Name).Str("vendor", string(d.Vendor)).Msg("device found")
	}
	return backend.NewSelector(devices), nil
}

// buildStack wires the coordinator from configuration. reg receives the
// coordinator metrics; pub, if set, sees every event next to the broadcaster.
func (a *app) buildStack(ctx context.Context, reg prometheus.Registerer, pub coordinator.EventPublisher) (*stack, error) {
	cfg := a.cfg
	sel, err := a.detectDevices(ctx)
	if err != nil {
		return nil, err
	}
	pc := cfg.ProviderConfig()
	if err := sel.SetProvider(pc); err != nil {
		return nil, err
	}
	hub, err := registry.NewHub(cfg.Local.ModelsDir, a.log)
	if err != nil {
		return nil, err
	}
	if !backend.LlamaBuilt && pc.Provider == types.ProviderLocal {
		a.log.Warn().Msg("built without llama.cpp (-tags=llama); local completions are unavailable")
	}
	factory := backend.Factory{
		Runtime: backend.NewLlamaRuntime(),
		Models: backend.HubModels{
			Hub:      hub,
			Explicit: cfg.Local.ModelPath,
			GPUModel: cfg.Local.GPUModel,
			CPUModel: cfg.Local.CPUModel,
		},
		Load: backend.LoadOptions{
			CtxSize:   cfg.Local.CtxSize,
			Threads:   cfg.Local.Threads,
			GPULayers: cfg.Local.GPULayers,
		},
		Resolver: backend.EnvResolver{},
		HTTP:     &http.Client{},
	}
	pool := backend.NewPool(factory, a.log)
	pool.SetProvider(pc)

	metrics := coordinator.NewMetrics(reg)
	clk := clock.New()
	wd := watchdog.New(clk, a.log, watchdog.Options{
		CrashLoopThreshold: cfg.Watchdog.CrashLoopThreshold,
		CrashLoopWindow:    cfg.CrashLoopWindow(),
		Heartbeat:          cfg.Heartbeat(),
		Crashes:            metrics.WorkerCrashes,
	})
	var sc *cache.Suggestions
	if !cfg.Cache.Disabled {
		sc = cache.New(cfg.CacheTTL(), cfg.Cache.Capacity)
	}
	st := &stack{docs: document.NewStore(), sel: sel, pool: pool, cache: sc, events: coordinator.NewBroadcaster()}
	st.coord = coordinator.New(coordinator.ConfigFrom(cfg), coordinator.Options{
		Clock:     clk,
		Log:       a.log,
		Documents: st.docs,
		Selector:  sel,
		Backends:  pool,
		Watchdog:  wd,
		Cache:     sc,
		Publisher: coordinator.Publishers(st.events, pub),
		Metrics:   metrics,
	})
	return st, nil
}

func (s *stack) Close() error {
	s.cache.Close()
	return s.pool.Close()
}
