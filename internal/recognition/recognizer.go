package recognition

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
)

// ErrAlreadyStarted is returned by Start while a capture is live.
var ErrAlreadyStarted = &domain.RecognitionError{
	Code: domain.RecognitionErrorInvalidState,
	Err:  errors.New("recognition has already started"),
}

// Config controls capture and streaming for one recognition attempt.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	StreamTimeout  time.Duration
}

// StreamingRecognizer turns microphone capture plus a streaming provider into
// a recognizer that reports one final transcript per session.
type StreamingRecognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	log      *slog.Logger
	events   chan domain.RecognitionEvent

	mu      sync.Mutex
	current *capture
}

type capture struct {
	id       string
	stop     chan struct{}
	stopOnce sync.Once
}

func (c *capture) requestStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func NewStreamingRecognizer(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg Config,
	logger *slog.Logger,
) *StreamingRecognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 4 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingRecognizer{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		log:      logger,
		events:   make(chan domain.RecognitionEvent, 8),
	}
}

func (r *StreamingRecognizer) Available() error { return nil }

func (r *StreamingRecognizer) Events() <-chan domain.RecognitionEvent { return r.events }

// Start begins a capture in the given language. The outcome is reported on Events.
func (r *StreamingRecognizer) Start(ctx context.Context, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return ErrAlreadyStarted
	}

	c := &capture{id: uuid.NewString(), stop: make(chan struct{})}
	r.current = c
	go r.run(ctx, c, language)
	return nil
}

// Stop asks the live capture to finish. Without one it does nothing.
func (r *StreamingRecognizer) Stop() error {
	r.mu.Lock()
	c := r.current
	r.mu.Unlock()
	if c != nil {
		c.requestStop()
	}
	return nil
}

func (r *StreamingRecognizer) run(ctx context.Context, c *capture, language string) {
	log := r.log.With(slog.String("capture", c.id), slog.String("language", language))
	defer func() {
		r.mu.Lock()
		if r.current == c {
			r.current = nil
		}
		r.mu.Unlock()
		r.emit(ctx, domain.RecognitionEvent{Kind: domain.RecognitionEventEnd})
	}()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamCfg := r.cfg.Streaming
	streamCfg.Language = language
	streamCfg.InterimResults = false

	stream, err := r.provider.StartStreaming(sessionCtx, streamCfg)
	if err != nil {
		r.fail(ctx, log, domain.RecognitionErrorNetwork, err)
		return
	}
	audioSession, err := r.audio.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		r.fail(ctx, log, domain.RecognitionErrorAudioCapture, err)
		return
	}

	log.Info("recognition started")
	r.emit(ctx, domain.RecognitionEvent{Kind: domain.RecognitionEventStart})

	aggregator := newTranscriptAggregator()
	eventsDone := make(chan struct{})
	audioDone := make(chan struct{})
	pumpErrs := make(chan error, 1)
	go collectTranscripts(stream, aggregator, eventsDone)
	go pumpAudioChunks(audioSession, stream, r.cfg.ChunkSize, pumpErrs, audioDone)

	select {
	case <-c.stop:
	case <-audioDone:
	case <-ctx.Done():
		_ = audioSession.Stop()
		_ = stream.Close()
		<-eventsDone
		<-audioDone
		r.fail(ctx, log, domain.RecognitionErrorAborted, ctx.Err())
		return
	}

	if err := audioSession.Stop(); err != nil {
		log.Warn("failed to stop audio capture cleanly", slog.String("error", err.Error()))
	}
	if r.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(r.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	_ = stream.CloseSend()
	streamErr := waitForStream(stream, r.cfg.StreamTimeout)
	<-eventsDone
	<-audioDone

	var pumpErr error
	select {
	case pumpErr = <-pumpErrs:
	default:
	}

	transcript := aggregator.Best()
	switch {
	case transcript != "":
		log.Info("recognition produced transcript", slog.Int("chars", len(transcript)))
		r.emit(ctx, domain.RecognitionEvent{Kind: domain.RecognitionEventResult, Transcript: transcript})
	case pumpErr != nil:
		r.fail(ctx, log, errorCode(pumpErr, domain.RecognitionErrorAudioCapture), pumpErr)
	case streamErr != nil:
		r.fail(ctx, log, domain.RecognitionErrorNetwork, streamErr)
	default:
		r.fail(ctx, log, domain.RecognitionErrorNoSpeech, nil)
	}
}

func (r *StreamingRecognizer) fail(ctx context.Context, log *slog.Logger, code string, err error) {
	attrs := []any{slog.String("code", code)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.Warn("recognition failed", attrs...)
	r.emit(ctx, domain.RecognitionEvent{Kind: domain.RecognitionEventError, Code: code})
}

func (r *StreamingRecognizer) emit(ctx context.Context, event domain.RecognitionEvent) {
	select {
	case r.events <- event:
	case <-ctx.Done():
	}
}

func errorCode(err error, fallback string) string {
	var recErr *domain.RecognitionError
	if errors.As(err, &recErr) && recErr.Code != "" {
		return recErr.Code
	}
	return fallback
}
