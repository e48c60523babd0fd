package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/boardcheck/internal/domain/model"
)

const (
	defaultHTTPTimeout = 2 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPSource calls a model-serving endpoint:
//
//	POST {base}/v1/models/{model}:infer   body: raw image bytes
//
// A 200 response carries the ModelScoreReport as JSON. 404 means the model is
// not served and 422 means no face was found in the image.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
}

var _ Source = (*HTTPSource)(nil)

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// NewHTTPSource builds a source for baseURL. Requests carry trace context.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inference url %q", baseURL)
	}
	s := &HTTPSource{
		base: u,
		client: &http.Client{
			Timeout:   defaultHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Infer posts image to the model endpoint.
func (s *HTTPSource) Infer(ctx context.Context, image []byte, modelName string) (model.ModelScoreReport, error) {
	endpoint := s.base.JoinPath("v1", "models", modelName+":infer")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(image))
	if err != nil {
		return model.ModelScoreReport{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return model.ModelScoreReport{}, fmt.Errorf("%w: %s: %w", ErrUpstream, modelName, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.ModelScoreReport{}, fmt.Errorf("%w: read %s response: %w", ErrUpstream, modelName, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.ModelScoreReport{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	case http.StatusUnprocessableEntity:
		return model.ModelScoreReport{}, fmt.Errorf("%w: %s", ErrNoFaceDetected, modelName)
	default:
		return model.ModelScoreReport{}, fmt.Errorf("%w: %s returned %d", ErrUpstream, modelName, resp.StatusCode)
	}

	var report model.ModelScoreReport
	if err := json.Unmarshal(body, &report); err != nil {
		return model.ModelScoreReport{}, fmt.Errorf("%w: decode %s response: %w", ErrUpstream, modelName, err)
	}
	if report.ModelName == "" {
		report.ModelName = modelName
	}
	if report.ModelName != modelName {
		return model.ModelScoreReport{}, fmt.Errorf("%w: asked %s, got report for %s", ErrUpstream, modelName, report.ModelName)
	}
	if err := report.Validate(); err != nil {
		return model.ModelScoreReport{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return report, nil
}
