package registry

import (
	"fmt"
	"path"
	"strings"
)

// Ref is a Hugging Face model reference:
//
//	owner/repo[@revision][:path/to/file.gguf]
//	owner/repo/path/to/file.gguf
//
// File may also be a quantization alias such as "Q4_K_M", or empty, in which
// case it is resolved against the repository listing.
type Ref struct {
	Repo     string
	Revision string
	File     string
}

// ParseRef parses a model reference.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty model reference")
	}
	left, file, _ := strings.Cut(s, ":")
	rev := "main"
	if repo, r, ok := strings.Cut(left, "@"); ok {
		left, rev = repo, r
	}
	parts := strings.Split(left, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid model reference %q: expected owner/repo", s)
	}
	file = strings.Trim(file, "/")
	if file == "" && len(parts) > 2 {
		file = strings.Join(parts[2:], "/")
	}
	if rev == "" {
		rev = "main"
	}
	return Ref{Repo: parts[0] + "/" + parts[1], Revision: rev, File: file}, nil
}

// NeedsResolution reports whether File is an alias rather than a file path.
func (r Ref) NeedsResolution() bool {
	return !strings.Contains(r.File, "/") && !strings.Contains(r.File, ".")
}

// Filename is the base name the model is stored under locally.
func (r Ref) Filename() string { return path.Base(r.File) }

// DownloadURL is the resolve URL for the file on hub base.
func (r Ref) DownloadURL(base string) string {
	return strings.TrimRight(base, "/") + "/" + r.Repo + "/resolve/" + r.Revision + "/" + r.File + "?download=1"
}

func (r Ref) String() string {
	s := r.Repo
	if r.Revision != "" && r.Revision != "main" {
		s += "@" + r.Revision
	}
	if r.File != "" {
		s += ":" + r.File
	}
	return s
}

// matchAlias picks the GGUF file for alias from a repository listing: an
// exact "<alias>.gguf" suffix wins, otherwise the shortest name containing
// the alias.
func matchAlias(files []string, alias string) (string, bool) {
	a := strings.ToLower(alias)
	var best string
	for _, f := range files {
		l := strings.ToLower(f)
		if !isGGUF(l) || !strings.Contains(l, a) {
			continue
		}
		if a != "" && strings.HasSuffix(l, a+".gguf") {
			return f, true
		}
		if best == "" || len(f) < len(best) {
			best = f
		}
	}
	return best, best != ""
}
