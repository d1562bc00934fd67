// Package relay submits transcripts to the processing endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voicerelay/internal/domain"
)

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("processing endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("processing endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client implements ports.Processor over HTTP.
type Client struct {
	url  string
	http *http.Client
}

// NewClient targets <endpoint>/process. A nil httpClient uses a client
// without a timeout; requests end when ctx does.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		url:  strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/process",
		http: httpClient,
	}
}

// URL is the full processing URL.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) Process(ctx context.Context, req domain.ProcessRequest) (domain.ProcessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.ProcessResponse{}, fmt.Errorf("encode process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.ProcessResponse{}, fmt.Errorf("build process request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.ProcessResponse{}, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ProcessResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out domain.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ProcessResponse{}, fmt.Errorf("decode process response: %w", err)
	}
	return out, nil
}
