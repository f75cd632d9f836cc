// Package ollama is a small client for a local Ollama runtime. It covers
// the two endpoints the gateway needs: /api/generate for non-streaming
// inference and /api/tags for availability probes.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultModel            = "llama3.1:8b"
	DefaultBaseURL          = "http://localhost:11434"
	DefaultProbeTimeout     = 5 * time.Second
	DefaultInferenceTimeout = 120 * time.Second

	maxResponseBytes = 10 << 20 // 10 MB
)

var (
	// ErrUnavailable is returned for transport failures and timeouts
	ErrUnavailable = errors.New("ollama: endpoint unavailable")
	// ErrMalformedResponse is returned when the response envelope is not valid JSON
	ErrMalformedResponse = errors.New("ollama: malformed response")
)

// StatusError reports a non-2xx reply
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	BaseURL          string
	Model            string
	Temperature      float64
	NumPredict       int
	ProbeTimeout     time.Duration
	InferenceTimeout time.Duration
	HTTPClient       *http.Client
}

// Client talks to one Ollama endpoint with one configured model
type Client struct {
	baseURL          string
	model            string
	temperature      float64
	numPredict       int
	probeTimeout     time.Duration
	inferenceTimeout time.Duration
	http             *http.Client
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// New creates a client; zero option values fall back to the defaults
func New(opts Options) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		model:            opts.Model,
		temperature:      opts.Temperature,
		numPredict:       opts.NumPredict,
		probeTimeout:     opts.ProbeTimeout,
		inferenceTimeout: opts.InferenceTimeout,
		http:             opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.numPredict == 0 {
		c.numPredict = 2000
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	if c.inferenceTimeout <= 0 {
		c.inferenceTimeout = DefaultInferenceTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// Model returns the configured model identifier
func (c *Client) Model() string { return c.model }

// BaseURL returns the endpoint root
func (c *Client) BaseURL() string { return c.baseURL }

// Generate runs one non-streaming completion and returns the response text
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			NumPredict:  c.numPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.inferenceTimeout)
	defer cancel()

	raw, err := c.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.Response, nil
}

// Models lists the model names installed at the endpoint
func (c *Client) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	raw, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}

	var tags tagsResponse
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping reports whether the endpoint answers the tags probe
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return raw, nil
}
