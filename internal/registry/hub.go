package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"ghostd/internal/common/fsutil"
)

// DefaultHubURL is the public Hugging Face endpoint.
const DefaultHubURL = "https://huggingface.co"

// ErrNotDownloaded is returned by Find when no verified local copy exists.
var ErrNotDownloaded = errors.New("model not downloaded")

// Progress reports download progress; total is -1 when unknown.
type Progress func(done, total int64)

// Hub downloads model files into Dir and finds them again offline.
type Hub struct {
	BaseURL string
	Dir     string
	Client  *http.Client
	Log     zerolog.Logger
}

// NewHub returns a Hub storing models in dir ("~" is expanded).
func NewHub(dir string, log zerolog.Logger) (*Hub, error) {
	d, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	return &Hub{BaseURL: DefaultHubURL, Dir: d, Client: http.DefaultClient, Log: log}, nil
}

// metadata is stored next to each model as <file>.meta.json.
type metadata struct {
	Ref    string `json:"ref"`
	SHA256 string `json:"sha256"`
	ETag   string `json:"etag,omitempty"`
	Size   int64  `json:"size"`
}

func (h *Hub) metaPath(filename string) string {
	return filepath.Join(h.Dir, filename+".meta.json")
}

func (h *Hub) readMeta(filename string) (metadata, error) {
	var m metadata
	b, err := os.ReadFile(h.metaPath(filename))
	if err != nil {
		return m, err
	}
	return m, json.Unmarshal(b, &m)
}

// verified reports whether filename exists with the size recorded at download.
func (h *Hub) verified(filename string) bool {
	m, err := h.readMeta(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(h.Dir, filename))
	return err == nil && info.Size() == m.Size
}

// Find returns the local path of ref without touching the network. Alias
// references match the shortest verified file containing the alias.
func (h *Hub) Find(ref Ref) (string, error) {
	if !ref.NeedsResolution() {
		if h.verified(ref.Filename()) {
			return filepath.Join(h.Dir, ref.Filename()), nil
		}
		return "", fmt.Errorf("%s: %w", ref, ErrNotDownloaded)
	}
	entries, err := os.ReadDir(h.Dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, ErrNotDownloaded)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !h.verified(e.Name()) {
			continue
		}
		if m, err := h.readMeta(e.Name()); err == nil && sameRepo(m.Ref, ref.Repo) {
			names = append(names, e.Name())
		}
	}
	if name, ok := matchAlias(names, ref.File); ok {
		return filepath.Join(h.Dir, name), nil
	}
	return "", fmt.Errorf("%s: %w", ref, ErrNotDownloaded)
}

// Resolve turns an alias reference into a concrete file using the hub's
// repository listing.
func (h *Hub) Resolve(ctx context.Context, ref Ref) (Ref, error) {
	if !ref.NeedsResolution() {
		return ref, nil
	}
	url := strings.TrimRight(h.BaseURL, "/") + "/api/models/" + ref.Repo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ref, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return ref, fmt.Errorf("resolve %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ref, fmt.Errorf("resolve %s: status %d", ref, resp.StatusCode)
	}
	var info struct {
		Siblings []struct {
			RFilename string `json:"rfilename"`
		} `json:"siblings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ref, fmt.Errorf("resolve %s: decode listing: %w", ref, err)
	}
	files := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		files = append(files, s.RFilename)
	}
	f, ok := matchAlias(files, ref.File)
	if !ok {
		return ref, fmt.Errorf("no GGUF file matching %q in %s", ref.File, ref.Repo)
	}
	h.Log.Info().Str("repo", ref.Repo).Str("alias", ref.File).Str("file", f).Msg("resolved model alias")
	ref.File = f
	return ref, nil
}

// Pull downloads ref unless a verified copy exists. The body is streamed to a
// temp file, hashed, checked against x-linked-etag when present, and renamed
// into place.
func (h *Hub) Pull(ctx context.Context, ref Ref, progress Progress) (string, error) {
	ref, err := h.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	name := ref.Filename()
	out := filepath.Join(h.Dir, name)
	if h.verified(name) {
		h.Log.Info().Str("path", out).Msg("model already downloaded")
		return out, nil
	}
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}
	url := ref.DownloadURL(h.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", ref, resp.StatusCode)
	}
	expected := strings.ToLower(strings.Trim(resp.Header.Get("x-linked-etag"), `"`))
	if expected == "" {
		expected = strings.ToLower(strings.Trim(resp.Header.Get("x-xet-hash"), `"`))
	}
	h.Log.Info().Str("url", url).Int64("bytes", resp.ContentLength).Msg("downloading model")

	tmp := out + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	pw := &progressWriter{total: resp.ContentLength, fn: progress}
	n, err := io.Copy(io.MultiWriter(f, hasher, pw), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", ref, err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	if expected != "" && looksLikeSHA256(expected) && expected != sum {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("hash mismatch for %s: expected %s, got %s", name, expected, sum)
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	meta, _ := json.Marshal(metadata{Ref: ref.String(), SHA256: sum, ETag: expected, Size: n})
	if err := fsutil.WriteFileAtomic(h.metaPath(name), meta, 0o644); err != nil {
		return "", err
	}
	h.Log.Info().Str("path", out).Str("sha256", sum).Msg("model downloaded")
	return out, nil
}

func sameRepo(stored, repo string) bool {
	return strings.HasPrefix(stored, repo+":") || strings.HasPrefix(stored, repo+"@")
}

func looksLikeSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

type progressWriter struct {
	done, total int64
	fn          Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return len(b), nil
}
