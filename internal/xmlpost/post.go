package xmlpost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrHTTPStatus is returned for non-2xx responses.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// DefaultContentType is sent when none is configured.
const DefaultContentType = "application/xml"

// PosterConfig configures a Poster.
type PosterConfig struct {
	URL         string
	ContentType string
	Headers     map[string]string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Poster sends documents to one endpoint.
type Poster struct {
	url         string
	contentType string
	headers     map[string]string
	client      *http.Client
	logger      *zap.Logger
}

// Response is what the endpoint answered.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// NewPoster returns a Poster. A zero Timeout defaults to 30 seconds.
func NewPoster(cfg PosterConfig) *Poster {
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultContentType
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poster{
		url:         cfg.URL,
		contentType: cfg.ContentType,
		headers:     cfg.Headers,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

// Post sends body. The response is returned even for non-2xx statuses,
// together with an ErrHTTPStatus error.
func (p *Poster) Post(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", p.contentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	p.logger.Debug("Posted document",
		zap.String("url", p.url),
		zap.Int("bytes", len(body)),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}
	return out, nil
}
