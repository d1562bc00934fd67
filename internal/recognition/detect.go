package recognition

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"voicerelay/internal/ports"
)

// Probe describes what the streaming recognizer needs from the host.
type Probe struct {
	RecorderBinary string
	APIKey         string
	LookPath       func(file string) (string, error)
}

// Check reports why the streaming recognizer cannot run here, or nil.
func (p Probe) Check() error {
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("DEEPGRAM_API_KEY is not configured")
	}
	command := strings.TrimSpace(p.RecorderBinary)
	if command == "" {
		return errors.New("no recorder binary configured")
	}
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(command); err != nil {
		return fmt.Errorf("recorder %q not found: %w", command, err)
	}
	return nil
}

// Detect selects the recognizer implementation once at startup.
func Detect(
	probe Probe,
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg Config,
	logger *slog.Logger,
) ports.Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if err := probe.Check(); err != nil {
		logger.Warn("speech recognition disabled", slog.String("reason", err.Error()))
		return Unavailable{Reason: err}
	}
	return NewStreamingRecognizer(audio, provider, cfg, logger)
}
