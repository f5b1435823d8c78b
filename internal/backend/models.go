package backend

import (
	"fmt"

	"ghostd/internal/common/fsutil"
	"ghostd/internal/registry"
	"ghostd/pkg/types"
)

// HubModels locates model files for local descriptors. An explicit path
// wins; otherwise accelerators use GPUModel and CPU uses CPUModel, looked up
// offline in the hub directory.
type HubModels struct {
	Hub *registry.Hub
	// Explicit is a model file used for every local descriptor when set.
	Explicit string
	GPUModel string
	CPUModel string
}

func (m HubModels) ModelPath(d types.BackendDescriptor) (string, error) {
	if m.Explicit != "" {
		p, err := fsutil.ExpandHome(m.Explicit)
		if err != nil {
			return "", err
		}
		if !fsutil.PathExists(p) {
			return "", fmt.Errorf("model file %s does not exist", p)
		}
		return p, nil
	}
	ref := m.CPUModel
	if d.Kind == types.BackendLocalAccelerated {
		ref = m.GPUModel
	}
	r, err := registry.ParseRef(ref)
	if err != nil {
		return "", err
	}
	if m.Hub == nil {
		return "", fmt.Errorf("%s: %w", r, registry.ErrNotDownloaded)
	}
	p, err := m.Hub.Find(r)
	if err != nil {
		return "", fmt.Errorf("%w (run `ghostd models pull %s`)", err, ref)
	}
	return p, nil
}
