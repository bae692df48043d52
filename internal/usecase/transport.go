package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"mei-diagnostic/internal/domain"
)

// Transport walks an ordered list of strategies and returns the decoded body
// of the first one that answers with a 2xx status and valid JSON.
type Transport struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewTransport creates a transport over the given strategies, tried in order.
func NewTransport(logger *zap.Logger, strategies ...Strategy) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{strategies: strategies, logger: logger}
}

// Strategies returns the names of the configured strategies, in order.
func (t *Transport) Strategies() []string {
	names := make([]string, 0, len(t.strategies))
	for _, s := range t.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Fetch performs one attempt per strategy. It never retries a strategy.
func (t *Transport) Fetch(ctx context.Context, req domain.UpstreamRequest, n *Narrator) (any, error) {
	var lastErr error = fmt.Errorf("no transport strategies configured")

	for i, s := range t.strategies {
		n.Sayf("trying strategy %d/%d: %s", i+1, len(t.strategies), s.Name())

		body, status, err := t.attempt(ctx, s, req)
		if status > 0 {
			n.Sayf("strategy %s responded HTTP %d", s.Name(), status)
		}
		if err != nil {
			n.Sayf("strategy %s failed: %v", s.Name(), err)
			t.logger.Warn("transport strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("entity_id", req.EntityID),
				zap.Error(err))
			lastErr = fmt.Errorf("strategy %s: %w", s.Name(), err)
			continue
		}

		n.Sayf("strategy %s succeeded", s.Name())
		return body, nil
	}

	return nil, &domain.UpstreamUnavailableError{Attempts: len(t.strategies), Last: lastErr}
}

func (t *Transport) attempt(ctx context.Context, s Strategy, req domain.UpstreamRequest) (body any, status int, err error) {
	// A strategy that panics while parsing counts as a failed attempt.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()

	resp, err := s.Attempt(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("empty response")
	}
	status = resp.Status
	t.logger.Debug("transport strategy responded",
		zap.String("strategy", s.Name()),
		zap.Int("status", resp.Status))
	if resp.Status < 200 || resp.Status > 299 {
		return nil, status, &domain.HTTPStatusError{StatusCode: resp.Status, Body: truncate(string(resp.Body), 256)}
	}

	body, err = decodeJSON(resp.Body)
	if err != nil {
		return nil, status, fmt.Errorf("undecodable body: %w", err)
	}
	return body, status, nil
}

// decodeJSON keeps numbers as json.Number so amounts are never rounded
// through float64.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// A relay error page appended to a valid prefix is still a bad body.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after the JSON value")
	}
	return v, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
