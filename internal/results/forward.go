package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Forwarder POSTs observations to an HTTP endpoint.
type Forwarder struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewForwarder returns a Forwarder with a 10 second request timeout.
func NewForwarder(endpoint string, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Forward sends obs as a JSON array. Non-2xx responses are errors.
func (f *Forwarder) Forward(ctx context.Context, obs []Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("forward to %s: %s", f.endpoint, resp.Status)
	}
	f.logger.Info("Results forwarded", zap.Int("count", len(obs)), zap.String("status", resp.Status))
	return nil
}
