package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ghostd/pkg/types"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// httpClient is the transport shared by remote backends. Deadlines come from
// the request context.
type httpClient struct {
	name   string
	client *http.Client
	now    func() time.Time
}

func newHTTPClient(name string, c *http.Client) httpClient {
	if c == nil {
		c = &http.Client{}
	}
	return httpClient{name: name, client: c, now: time.Now}
}

// postJSON sends body to url and decodes a 200 response into out. Failures
// come back as *Error with a Kind matching the HTTP status.
func (h httpClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return newError(types.FailureBadResponse, h.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return newError(types.FailureBadResponse, h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return newError(types.FailureTimeout, h.name, err)
		case errors.Is(err, context.Canceled):
			return newError(types.FailureCanceled, h.name, err)
		}
		return newError(types.FailureNetwork, h.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := newError(statusKind(resp.StatusCode), h.name,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		if e.Kind == types.FailureRateLimited {
			e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), h.now())
		}
		return e
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return newError(types.FailureTimeout, h.name, ctx.Err())
		}
		return newError(types.FailureBadResponse, h.name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func statusKind(code int) types.FailureKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return types.FailureAuth
	case code == http.StatusTooManyRequests:
		return types.FailureRateLimited
	case code == http.StatusRequestTimeout || code >= 500:
		return types.FailureNetwork
	}
	return types.FailureBadResponse
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func resolveCredential(name string, r CredentialResolver, handle string) (string, error) {
	if r == nil {
		r = EnvResolver{}
	}
	key, err := r.Resolve(handle)
	if err != nil {
		return "", newError(types.FailureAuth, name, err)
	}
	return key, nil
}
