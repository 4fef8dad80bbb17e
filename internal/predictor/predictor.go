// Package predictor is the HTTP client for the disease-risk model server.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// DefaultTimeout bounds one prediction round trip.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 512

// Opts holds configuration for the HTTP client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures a Client.
type Option func(*Opts)

// WithBaseURL sets the prediction endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client posts feature vectors to the model server.
type Client struct {
	url        string
	httpClient *http.Client
}

// predictResponse is the server's reply. Each value is either a bare
// probability, an object with a probability field, or a [label, probability] pair.
type predictResponse struct {
	Predictions map[string]json.RawMessage `json:"predictions"`
	Error       string                     `json:"error,omitempty"`
}

// NewClient creates a Client. A base URL is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("predictor URL not set")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("predictor.NewClient: created", "url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{url: cfg.BaseURL, httpClient: hc}, nil
}

// Predict returns disease -> probability percentage for the given features.
func (c *Client) Predict(ctx context.Context, features models.FeatureVector) (map[string]float64, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("predictor.Predict: request failed", "error", err)
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("predictor.Predict: unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("predictor returned status: %s, body: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("predictor error: %s", pr.Error)
	}
	out, err := decodeProbabilities(pr.Predictions)
	if err != nil {
		return nil, err
	}
	slog.Debug("predictor.Predict: succeeded", "diseases", len(out), "elapsed", time.Since(start))
	return out, nil
}

func decodeProbabilities(raw map[string]json.RawMessage) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no predictions in response", models.ErrMalformedResponse)
	}
	out := make(map[string]float64, len(raw))
	for disease, msg := range raw {
		p, err := decodeProbability(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedResponse, disease, err)
		}
		if !models.ValidProbability(p) {
			return nil, fmt.Errorf("%w: %s: probability %v out of range", models.ErrMalformedResponse, disease, p)
		}
		out[disease] = p
	}
	return out, nil
}

func decodeProbability(msg json.RawMessage) (float64, error) {
	var p float64
	if err := json.Unmarshal(msg, &p); err == nil {
		return p, nil
	}
	var obj struct {
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(msg, &obj); err == nil && obj.Probability != nil {
		return *obj.Probability, nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(msg, &pair); err == nil && len(pair) == 2 {
		if err := json.Unmarshal(pair[1], &p); err == nil {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unrecognized probability %s", string(msg))
}
