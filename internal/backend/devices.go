package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"ghostd/pkg/types"
)

// DeviceEnumerator lists local accelerators. The CPU pseudo-device is added by
// the selector and need not be returned.
type DeviceEnumerator interface {
	Devices(ctx context.Context) ([]types.Device, error)
}

// StaticDevices is a fixed device list, used by hosts that enumerate devices
// themselves.
type StaticDevices []types.Device

func (s StaticDevices) Devices(context.Context) ([]types.Device, error) { return s, nil }

// SystemDevices asks llama-cli for its device list and falls back to the DRM
// sysfs tree when the tool is missing or fails.
type SystemDevices struct {
	// LlamaCLI is the llama-cli binary; defaults to "llama-cli" on PATH.
	LlamaCLI string
	// DRMRoot defaults to /sys/class/drm.
	DRMRoot string
}

func (s SystemDevices) Devices(ctx context.Context) ([]types.Device, error) {
	bin := s.LlamaCLI
	if bin == "" {
		bin = "llama-cli"
	}
	out, err := exec.CommandContext(ctx, bin, "--list-devices").Output()
	if err == nil {
		return ParseListDevices(string(out)), nil
	}
	root := s.DRMRoot
	if root == "" {
		root = "/sys/class/drm"
	}
	return ScanDRM(root), nil
}

// ParseListDevices parses `llama-cli --list-devices` output, one "id: name"
// line per device after the "Available devices:" header.
func ParseListDevices(out string) []types.Device {
	if i := strings.Index(out, "Available devices"); i >= 0 {
		out = out[i:]
	}
	var devs []types.Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Available") {
			continue
		}
		id, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" || strings.EqualFold(id, "cpu") {
			continue
		}
		devs = append(devs, types.Device{ID: id, Name: name, Vendor: GuessVendor(id + " " + name)})
	}
	return devs
}

// GuessVendor infers the vendor from a runtime device id or marketing name.
func GuessVendor(s string) types.Vendor {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		w = strings.TrimRightFunc(w, unicode.IsDigit)
		switch w {
		case "cuda", "nvidia", "geforce", "rtx", "quadro", "tesla":
			return types.VendorNVIDIA
		case "rocm", "hip", "amd", "radeon":
			return types.VendorAMD
		case "sycl", "intel", "arc", "iris":
			return types.VendorIntel
		}
	}
	return types.VendorUnknown
}

var pciVendors = map[string]types.Vendor{
	"0x10de": types.VendorNVIDIA,
	"0x1002": types.VendorAMD,
	"0x8086": types.VendorIntel,
}

// ScanDRM lists cardN entries under root by PCI vendor id. Connector entries
// such as card0-DP-1 are skipped.
func ScanDRM(root string) []types.Device {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var cards []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, "card") && !strings.Contains(n, "-") {
			cards = append(cards, n)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cardIndex(cards[i]) < cardIndex(cards[j]) })
	var devs []types.Device
	for i, n := range cards {
		v := types.VendorUnknown
		if b, err := os.ReadFile(filepath.Join(root, n, "device", "vendor")); err == nil {
			if known, ok := pciVendors[strings.TrimSpace(string(b))]; ok {
				v = known
			}
		}
		name := "GPU " + strconv.Itoa(i)
		switch v {
		case types.VendorNVIDIA:
			name = "NVIDIA GPU"
		case types.VendorAMD:
			name = "AMD GPU"
		case types.VendorIntel:
			name = "Intel GPU"
		}
		devs = append(devs, types.Device{ID: strconv.Itoa(i), Name: name, Vendor: v})
	}
	return devs
}

func cardIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "card"))
	if err != nil {
		return 1 << 30
	}
	return n
}
