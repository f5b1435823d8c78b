package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"ghostd/pkg/types"
)

// Opener constructs the Backend for a descriptor. It may block for as long
// as a model load takes.
type Opener interface {
	Open(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error)

func (f OpenerFunc) Open(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error) {
	return f(d, pc)
}

// ModelLocator maps a local descriptor to a model file on disk.
type ModelLocator interface {
	ModelPath(d types.BackendDescriptor) (string, error)
}

// Factory is the default Opener: llama.cpp for local descriptors and the HTTP
// clients for remote ones.
type Factory struct {
	Runtime  Runtime
	Models   ModelLocator
	Load     LoadOptions
	Resolver CredentialResolver
	HTTP     *http.Client
}

func (f Factory) Open(d types.BackendDescriptor, pc types.ProviderConfig) (Backend, error) {
	switch d.Kind {
	case types.BackendRemoteHTTP:
		switch types.ProviderKind(d.Provider) {
		case types.ProviderOpenAI:
			return NewOpenAI(pc, f.Resolver, f.HTTP), nil
		case types.ProviderGemini:
			return NewGemini(pc, f.Resolver, f.HTTP), nil
		}
		return nil, ErrUnavailable(d.ID, fmt.Sprintf("unknown provider %q", d.Provider))
	}
	if f.Runtime == nil || f.Models == nil {
		return nil, ErrUnavailable(d.ID, "local inference not configured")
	}
	path, err := f.Models.ModelPath(d)
	if err != nil {
		return nil, ErrUnavailable(d.ID, err.Error())
	}
	return OpenLocal(f.Runtime, d, path, f.Load)
}

// Pool opens backends lazily, once per descriptor, and shares them between
// workers. The first caller performs the load; later callers wait for it or
// give up when their context ends. Failed loads are not cached.
type Pool struct {
	opener   Opener
	log      zerolog.Logger
	mu       sync.Mutex
	entries  map[string]*poolEntry
	provider types.ProviderConfig
}

type poolEntry struct {
	ready  chan struct{}
	remote bool
	b      Backend
	err    error
}

var errLoadAborted = errors.New("backend load aborted")

// NewPool returns an empty pool.
func NewPool(o Opener, log zerolog.Logger) *Pool {
	return &Pool{opener: o, log: log, entries: make(map[string]*poolEntry)}
}

// Get returns the backend for d, loading it on first use.
func (p *Pool) Get(ctx context.Context, d types.BackendDescriptor) (Backend, error) {
	p.mu.Lock()
	e, ok := p.entries[d.ID]
	if !ok {
		e = &poolEntry{ready: make(chan struct{}), remote: d.Kind == types.BackendRemoteHTTP}
		p.entries[d.ID] = e
	}
	pc := p.provider
	p.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.b, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer func() {
		if e.b == nil && e.err == nil {
			e.err = errLoadAborted
		}
		if e.err != nil {
			p.mu.Lock()
			if p.entries[d.ID] == e {
				delete(p.entries, d.ID)
			}
			p.mu.Unlock()
		}
		close(e.ready)
	}()
	p.log.Info().Str("backend", d.ID).Msg("loading backend")
	e.b, e.err = p.opener.Open(d, pc)
	if e.err != nil {
		p.log.Warn().Err(e.err).Str("backend", d.ID).Msg("backend load failed")
	}
	return e.b, e.err
}

// SetProvider records remote connection settings and drops cached remote
// backends so the next request uses them.
func (p *Pool) SetProvider(pc types.ProviderConfig) {
	p.mu.Lock()
	p.provider = pc
	var stale []Backend
	for id, e := range p.entries {
		if !e.remote {
			continue
		}
		delete(p.entries, id)
		select {
		case <-e.ready:
			if e.b != nil {
				stale = append(stale, e.b)
			}
		default:
		}
	}
	p.mu.Unlock()
	for _, b := range stale {
		_ = b.Close()
	}
}

// Loaded lists ids of backends currently open.
func (p *Pool) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, e := range p.entries {
		select {
		case <-e.ready:
			if e.b != nil {
				ids = append(ids, id)
			}
		default:
		}
	}
	return ids
}

// Close releases every loaded backend.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()
	var errs []error
	for _, e := range entries {
		select {
		case <-e.ready:
			if e.b != nil {
				errs = append(errs, e.b.Close())
			}
		default:
		}
	}
	return errors.Join(errs...)
}
