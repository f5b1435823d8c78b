package backend

import (
	"strings"

	"ghostd/pkg/types"
)

// Fill-in-the-middle sentinels understood by Qwen-style FIM models.
const (
	FIMPrefix = "<|fim_prefix|>"
	FIMSuffix = "<|fim_suffix|>"
	FIMMiddle = "<|fim_middle|>"
)

// A generated token containing any of these is the model leaking its template.
var leakedMarkers = []string{"<|fim_", "<|file_sep|>", "<｜fim"}

var sentinelStripper = strings.NewReplacer(
	FIMPrefix, "", FIMSuffix, "", FIMMiddle, "", "<|fim_pad|>", "",
	"<|file_sep|>", "",
	"<｜fim▁begin｜>", "", "<｜fim▁hole｜>", "", "<｜fim▁end｜>", "",
)

// Params are the generation knobs shared by every backend.
type Params struct {
	MaxTokens    int
	FIMMaxTokens int
	Temperature  float32
}

// Prompt renders the snapshot for a raw-completion model: a FIM prompt when
// there is text after the cursor, the prefix alone otherwise.
func Prompt(snap types.ContextSnapshot) string {
	if !snap.FIM() {
		return snap.Prefix
	}
	return FIMPrefix + snap.Prefix + FIMSuffix + snap.Suffix + FIMMiddle
}

// TokenBudget is the generation cap for snap.
func TokenBudget(snap types.ContextSnapshot, p Params) int {
	n := p.MaxTokens
	if n <= 0 {
		n = 128
	}
	if snap.FIM() && p.FIMMaxTokens > 0 && p.FIMMaxTokens < n {
		n = p.FIMMaxTokens
	}
	return n
}

// LeakedToken reports whether a streamed token piece must be skipped.
func LeakedToken(piece string) bool {
	for _, m := range leakedMarkers {
		if strings.Contains(piece, m) {
			return true
		}
	}
	return false
}

// Sanitize cleans raw model output: known template sentinels are removed,
// FIM output is right-trimmed, and whitespace-only text becomes empty.
func Sanitize(text string, fim bool) string {
	text = sentinelStripper.Replace(text)
	if fim {
		text = strings.TrimRight(text, " \t\r\n")
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}
