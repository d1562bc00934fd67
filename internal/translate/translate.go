// Package translate provides the translation backends used by relayd and the
// degradation rules applied when a backend fails.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"voicerelay/internal/ports"
)

// Kind classifies a translation failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindRequest    Kind = "failed"
	KindUnexpected Kind = "error"
)

// Error is returned by backends so callers can pick a fallback text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translation %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps transport errors, promoting timeouts.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindRequest, Err: err}
}

// Fallback is the text shown in place of a translation when err occurred.
func Fallback(err error, text string) string {
	var terr *Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case KindTimeout:
			return "[Translation timeout] " + text
		case KindRequest:
			return "[Translation failed] " + text
		}
	}
	return "[Translation error] " + text
}

// Outcome is the result of one translation attempt.
type Outcome struct {
	Text string
	// Status is "ok", "skipped" or the failure Kind.
	Status string
}

// Service never fails: backend errors degrade to a marked copy of the input.
type Service struct {
	backend ports.Translator
	logger  *slog.Logger
}

func NewService(backend ports.Translator, logger *slog.Logger) *Service {
	if backend == nil {
		backend = Passthrough{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// Backend names the configured translator.
func (s *Service) Backend() string {
	return s.backend.Name()
}

// Translate converts text from sourceLang to targetLang. Identical languages
// and empty text return the input unchanged.
func (s *Service) Translate(ctx context.Context, text string, sourceLang string, targetLang string) Outcome {
	if text == "" || strings.EqualFold(sourceLang, targetLang) {
		return Outcome{Text: text, Status: "skipped"}
	}

	translated, err := s.backend.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		status := string(KindUnexpected)
		var terr *Error
		if errors.As(err, &terr) {
			status = string(terr.Kind)
		}
		s.logger.Warn("translation failed",
			slog.String("backend", s.backend.Name()),
			slog.String("source", sourceLang),
			slog.String("target", targetLang),
			slog.String("error", err.Error()),
		)
		return Outcome{Text: Fallback(err, text), Status: status}
	}
	if translated == "" {
		translated = text
	}
	return Outcome{Text: translated, Status: "ok"}
}

// SourceLanguage reduces a BCP-47 tag such as "en-US" to its primary subtag.
func SourceLanguage(tag string) string {
	primary, _, _ := strings.Cut(tag, "-")
	return primary
}

// Passthrough returns text unchanged.
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Translate(_ context.Context, text string, _ string, _ string) (string, error) {
	return text, nil
}
