package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ghostd/internal/common/fsutil"
	"ghostd/pkg/types"
)

// LoadDir scans a directory for *.gguf files. ID is the file name; Path is
// absolute. A missing directory yields an empty list.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !isGGUF(e.Name()) {
			continue
		}
		m := types.Model{ID: e.Name(), Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), Path: filepath.Join(abs, e.Name())}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func isGGUF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gguf")
}
