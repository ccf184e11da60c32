// Package ollama is a thin client for the local Ollama inference server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a generate call. A hung backend must surface as a
// failure, not leave the calling actor marked busy until process restart.
const DefaultTimeout = 60 * time.Second

// NoResponse is the reply text used when a 200 response carries no
// generated text.
const NoResponse = "No response generated"

// StatusError reports a non-200 backend response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: status code %d", e.Code)
}

// Client talks to one Ollama server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string        // defaults to http://localhost:11434
	Timeout time.Duration // defaults to DefaultTimeout
	// For testing: inject a transport.
	Transport http.RoundTripper
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) *Client {
	base := opts.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
	}
}

// GenerateRequest is the body of POST /api/generate. Stream is always
// false; Switchboard consumes whole responses.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate asks the backend for a completion and returns the generated
// text. Non-200 responses return a *StatusError.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Code: resp.StatusCode}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Response == "" {
		return NoResponse, nil
	}
	return out.Response, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of all models the backend advertises.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Reachable reports whether the backend answers /api/tags. Used by the
// control panel status view.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}
