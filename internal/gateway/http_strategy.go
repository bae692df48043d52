package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"mei-diagnostic/internal/domain"
)

// UserAgent identifies the engine to the webhook and the relays.
const UserAgent = "meidiag/1.0 (+fiscal-diagnostic)"

// DefaultTimeout bounds a single strategy attempt.
const DefaultTimeout = 90 * time.Second

// maxBodySize caps how much of a response is read into memory.
const maxBodySize = 8 << 20

// NewHTTPClient returns a client to be shared by the HTTP strategies.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// DirectStrategy posts straight to the webhook URL.
type DirectStrategy struct {
	client *http.Client
}

// NewDirectStrategy creates a direct strategy. A nil client uses the defaults.
func NewDirectStrategy(client *http.Client) *DirectStrategy {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &DirectStrategy{client: client}
}

// Name identifies the strategy in narration and logs.
func (s *DirectStrategy) Name() string { return "direct" }

// Attempt posts the identity payload to the webhook.
func (s *DirectStrategy) Attempt(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	target, err := targetURL(req)
	if err != nil {
		return nil, err
	}
	return post(ctx, s.client, target, req)
}

// RelayStrategy sends the request through a cross-origin relay that takes
// the escaped target URL as a suffix and returns the body unchanged.
type RelayStrategy struct {
	client *http.Client
	prefix string
}

// NewRelayStrategy creates a relay strategy for the given URL prefix.
func NewRelayStrategy(client *http.Client, prefix string) *RelayStrategy {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &RelayStrategy{client: client, prefix: prefix}
}

// Name identifies the strategy in narration and logs.
func (s *RelayStrategy) Name() string { return "relay" }

// Attempt posts through the relay and returns its reply as is.
func (s *RelayStrategy) Attempt(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	target, err := targetURL(req)
	if err != nil {
		return nil, err
	}
	return post(ctx, s.client, s.prefix+url.QueryEscape(target), req)
}

// WrappedRelayStrategy uses a relay that answers with an envelope carrying
// the upstream body as a string in "contents".
type WrappedRelayStrategy struct {
	client *http.Client
	prefix string
}

// NewWrappedRelayStrategy creates a wrapped relay strategy for the given URL
// prefix.
func NewWrappedRelayStrategy(client *http.Client, prefix string) *WrappedRelayStrategy {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &WrappedRelayStrategy{client: client, prefix: prefix}
}

// Name identifies the strategy in narration and logs.
func (s *WrappedRelayStrategy) Name() string { return "wrapped-relay" }

type relayEnvelope struct {
	Contents *string `json:"contents"`
	Status   struct {
		HTTPCode int `json:"http_code"`
	} `json:"status"`
}

// Attempt posts through the relay and unwraps the upstream body and status
// from its envelope. A non-2xx relay reply is returned without unwrapping.
func (s *WrappedRelayStrategy) Attempt(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	target, err := targetURL(req)
	if err != nil {
		return nil, err
	}
	resp, err := post(ctx, s.client, s.prefix+url.QueryEscape(target), req)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return resp, nil
	}

	var env relayEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("could not decode relay envelope: %w", err)
	}
	if env.Contents == nil {
		return nil, fmt.Errorf("relay envelope has no contents")
	}
	status := resp.Status
	if env.Status.HTTPCode != 0 {
		status = env.Status.HTTPCode
	}
	return &domain.UpstreamResponse{Status: status, Body: []byte(*env.Contents)}, nil
}

// targetURL appends the identity query parameter to the webhook URL.
func targetURL(req domain.UpstreamRequest) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url %q: %w", req.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid webhook url %q: missing scheme or host", req.URL)
	}
	q := u.Query()
	q.Set(req.IdentityField, req.EntityID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func post(ctx context.Context, client *http.Client, target string, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	payload, err := json.Marshal(map[string]string{req.IdentityField: req.EntityID})
	if err != nil {
		return nil, fmt.Errorf("could not encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set(req.HeaderName, req.EntityID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return &domain.UpstreamResponse{Status: resp.StatusCode, Body: body}, nil
}
