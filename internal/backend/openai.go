package backend

import (
	"context"
	"net/http"
	"strings"

	"ghostd/pkg/types"
)

// OpenAI talks to any OpenAI-compatible /completions endpoint. FIM snapshots
// are sent as prompt plus suffix.
type OpenAI struct {
	BaseURL    string
	Model      string
	Credential string
	Resolver   CredentialResolver
	http       httpClient
}

// NewOpenAI builds an OpenAI-compatible backend. c may be nil.
func NewOpenAI(pc types.ProviderConfig, r CredentialResolver, c *http.Client) *OpenAI {
	return &OpenAI{
		BaseURL:    strings.TrimRight(pc.BaseURL, "/"),
		Model:      pc.Model,
		Credential: pc.Credential,
		Resolver:   r,
		http:       newHTTPClient(string(types.ProviderOpenAI), c),
	}
}

type openAIRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) Generate(ctx context.Context, snap types.ContextSnapshot, p Params) (string, error) {
	key, err := resolveCredential(o.http.name, o.Resolver, o.Credential)
	if err != nil {
		return "", err
	}
	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	req := openAIRequest{
		Model:       o.Model,
		Prompt:      snap.Prefix,
		Suffix:      snap.Suffix,
		MaxTokens:   TokenBudget(snap, p),
		Temperature: p.Temperature,
	}
	var resp openAIResponse
	if err := o.http.postJSON(ctx, o.BaseURL+"/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return Sanitize(resp.Choices[0].Text, snap.FIM()), nil
}

func (o *OpenAI) Close() error {
	o.http.client.CloseIdleConnections()
	return nil
}
