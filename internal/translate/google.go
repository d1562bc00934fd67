package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"
	defaultGoogleTimeout  = 10 * time.Second
)

// GoogleConfig controls the keyless Google Translate backend.
type GoogleConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Transport is optional; instrumented transports are wrapped here.
	Transport http.RoundTripper
}

// Google calls the public "gtx" endpoint used by the browser extension.
type Google struct {
	endpoint string
	client   *http.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultGoogleEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGoogleTimeout
	}
	return &Google{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error) {
	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", sourceLang)
	query.Set("tl", targetLang)
	query.Set("dt", "t")
	query.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &Error{
			Kind: KindRequest,
			Err:  fmt.Errorf("google translate returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", classify(fmt.Errorf("decode google translate response: %w", err))
	}

	translated, err := joinSegments(payload)
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Err: err}
	}
	if translated == "" {
		return text, nil
	}
	return translated, nil
}

// joinSegments concatenates payload[0][i][0]. The first element is null when
// nothing was translated.
func joinSegments(payload any) (string, error) {
	if payload == nil {
		return "", nil
	}
	outer, ok := payload.([]any)
	if !ok {
		return "", errors.New("google translate response is not an array")
	}
	if len(outer) == 0 || outer[0] == nil {
		return "", nil
	}
	segments, ok := outer[0].([]any)
	if !ok {
		return "", errors.New("google translate segments are not an array")
	}

	var b strings.Builder
	for _, raw := range segments {
		segment, ok := raw.([]any)
		if !ok || len(segment) == 0 {
			continue
		}
		if piece, ok := segment[0].(string); ok {
			b.WriteString(piece)
		}
	}
	return b.String(), nil
}
