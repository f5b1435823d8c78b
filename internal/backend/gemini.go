package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"ghostd/pkg/types"
)

// Gemini calls the generateContent endpoint. The model has no FIM mode, so
// the snapshot is framed as an instruction with a cursor marker.
type Gemini struct {
	BaseURL    string
	Model      string
	Credential string
	Resolver   CredentialResolver
	http       httpClient
}

// NewGemini builds a Gemini backend. c may be nil.
func NewGemini(pc types.ProviderConfig, r CredentialResolver, c *http.Client) *Gemini {
	return &Gemini{
		BaseURL:    strings.TrimRight(pc.BaseURL, "/"),
		Model:      pc.Model,
		Credential: pc.Credential,
		Resolver:   r,
		http:       newHTTPClient(string(types.ProviderGemini), c),
	}
}

const geminiCursor = "<CURSOR>"

const geminiInstruction = "Continue the text at " + geminiCursor + ". " +
	"Reply with only the characters to insert at the cursor, without repeating the surrounding text, " +
	"and without quotes or explanations.\n\n"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func geminiPrompt(snap types.ContextSnapshot) string {
	return geminiInstruction + snap.Prefix + geminiCursor + snap.Suffix
}

func (g *Gemini) Generate(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error) {
	key, err := resolveCredential(g.http.name, g.Resolver, g.Credential)
	if err != nil {
		return "", err
	}
	var req geminiRequest
	req.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: geminiPrompt(snap)}}}}
	req.GenerationConfig.MaxOutputTokens = TokenBudget(snap, p)
	req.GenerationConfig.Temperature = p.Temperature

	endpoint := g.BaseURL + "/models/" + url.PathEscape(g.Model) + ":generateContent"
	var resp geminiResponse
	if err := g.http.postJSON(ctx, endpoint, map[string]string{"x-goog-api-key": key}, req, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return Sanitize(b.String(), snap.FIM()), nil
}

func (g *Gemini) Close() error {
	g.http.client.CloseIdleConnections()
	return nil
}
