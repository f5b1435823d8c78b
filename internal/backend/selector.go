package backend

import (
	"fmt"
	"sort"
	"sync"

	"ghostd/pkg/types"
)

// CPUID is the descriptor id of the local CPU backend.
const CPUID = "cpu"

// VendorRank orders local accelerators; lower is preferred.
func VendorRank(v types.Vendor) int {
	switch v {
	case types.VendorNVIDIA:
		return 0
	case types.VendorAMD:
		return 1
	case types.VendorIntel:
		return 2
	}
	return 3
}

// Selection is the outcome of Select.
type Selection struct {
	Descriptor types.BackendDescriptor
	// Fallback is set when a pinned accelerator was degraded and CPU was chosen.
	Fallback bool
}

// Selector keeps the ranked descriptor list, the user pin and per-descriptor
// health for the whole session. Health is never reset by SetProvider.
type Selector struct {
	mu       sync.RWMutex
	descs    []types.BackendDescriptor
	pin      string
	provider types.ProviderConfig
}

// NewSelector ranks devices NVIDIA > AMD > Intel > other accelerators > CPU,
// keeping enumeration order within a vendor, and adds one descriptor per
// remote provider. CPU is always present.
func NewSelector(devices []types.Device) *Selector {
	var accel []types.Device
	for _, d := range devices {
		if !d.CPU {
			accel = append(accel, d)
		}
	}
	sort.SliceStable(accel, func(i, j int) bool {
		return VendorRank(accel[i].Vendor) < VendorRank(accel[j].Vendor)
	})
	s := &Selector{provider: types.ProviderConfig{Provider: types.ProviderLocal}}
	for i := range accel {
		dev := accel[i]
		s.descs = append(s.descs, types.BackendDescriptor{
			ID:           "gpu:" + dev.ID,
			Kind:         types.BackendLocalAccelerated,
			Device:       &dev,
			PriorityRank: i,
			Health:       types.HealthHealthy,
		})
	}
	s.descs = append(s.descs, types.BackendDescriptor{
		ID:           CPUID,
		Kind:         types.BackendLocalCPU,
		Device:       &types.Device{ID: CPUID, Name: "CPU", Vendor: types.VendorUnknown, CPU: true},
		PriorityRank: len(accel),
		Health:       types.HealthHealthy,
	})
	for i, p := range []types.ProviderKind{types.ProviderOpenAI, types.ProviderGemini} {
		s.descs = append(s.descs, types.BackendDescriptor{
			ID:           RemoteID(p),
			Kind:         types.BackendRemoteHTTP,
			Provider:     string(p),
			PriorityRank: len(accel) + 1 + i,
			Health:       types.HealthHealthy,
		})
	}
	return s
}

// RemoteID is the descriptor id of a remote provider.
func RemoteID(p types.ProviderKind) string { return "remote:" + string(p) }

// SetProvider applies a set_provider call: remote providers and explicit
// local choices become the pin; plain local clears it.
func (s *Selector) SetProvider(pc types.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pin string
	switch pc.Provider {
	case types.ProviderOpenAI, types.ProviderGemini:
		pin = RemoteID(pc.Provider)
	case types.ProviderLocal, "":
		switch {
		case pc.CPUOnly:
			pin = CPUID
		case pc.Device != "":
			pin = "gpu:" + pc.Device
			if s.indexLocked(pin) < 0 {
				return fmt.Errorf("unknown device %q", pc.Device)
			}
		}
	default:
		return fmt.Errorf("unknown provider %q", pc.Provider)
	}
	s.pin = pin
	s.provider = pc
	return nil
}

// Provider returns the active provider configuration.
func (s *Selector) Provider() types.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Pinned returns the pinned descriptor id, empty when ranking is automatic.
func (s *Selector) Pinned() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pin
}

// Select picks the descriptor for the next request:
//  1. a healthy pin;
//  2. CPU when the pin is a degraded local accelerator;
//  3. without a pin, the best-ranked healthy local descriptor.
//
// A failed remote pin never falls back to local and vice versa.
func (s *Selector) Select() (Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pin != "" {
		i := s.indexLocked(s.pin)
		if i < 0 {
			return Selection{}, ErrNoBackend
		}
		d := s.descs[i]
		if d.Health == types.HealthHealthy {
			return Selection{Descriptor: d}, nil
		}
		if d.Kind == types.BackendLocalAccelerated {
			if c := s.descs[s.indexLocked(CPUID)]; c.Health == types.HealthHealthy {
				return Selection{Descriptor: c, Fallback: true}, nil
			}
		}
		return Selection{}, ErrNoBackend
	}
	for _, d := range s.descs {
		if d.Kind.Local() && d.Health == types.HealthHealthy {
			return Selection{Descriptor: d}, nil
		}
	}
	return Selection{}, ErrNoBackend
}

// MarkDegraded records a load failure on id. For a local accelerator it
// returns the CPU descriptor to reissue on, if CPU is still healthy.
func (s *Selector) MarkDegraded(id string) (types.BackendDescriptor, bool) {
	return s.mark(id, types.HealthDegraded)
}

// MarkUnavailable records that id cannot run at all in this session.
func (s *Selector) MarkUnavailable(id string) {
	s.mark(id, types.HealthUnavailable)
}

func (s *Selector) mark(id string, h types.Health) (types.BackendDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return types.BackendDescriptor{}, false
	}
	s.descs[i].Health = h
	if s.descs[i].Kind != types.BackendLocalAccelerated {
		return types.BackendDescriptor{}, false
	}
	c := s.descs[s.indexLocked(CPUID)]
	return c, c.Health == types.HealthHealthy
}

// Descriptors returns a copy of the ranked list.
func (s *Selector) Descriptors() []types.BackendDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.BackendDescriptor, len(s.descs))
	copy(out, s.descs)
	return out
}

// Ready reports whether Select would currently succeed.
func (s *Selector) Ready() bool {
	_, err := s.Select()
	return err == nil
}

func (s *Selector) indexLocked(id string) int {
	for i, d := range s.descs {
		if d.ID == id {
			return i
		}
	}
	return -1
}
