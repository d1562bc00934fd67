package ports

import (
	"context"
	"io"

	"voicerelay/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental output from a transcription provider.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Recognizer is the platform speech-to-text capability.
//
// Available reports a permanent reason when the capability is missing. Start is
// asynchronous: the outcome arrives on Events as start/result/error/end.
type Recognizer interface {
	Available() error
	Start(ctx context.Context, language string) error
	Stop() error
	Events() <-chan domain.RecognitionEvent
}

// Processor submits a transcript to the processing endpoint.
type Processor interface {
	Process(ctx context.Context, req domain.ProcessRequest) (domain.ProcessResponse, error)
}

// View is the visible page state.
type View interface {
	SetStatus(text string)
	SetToggle(label string, recording bool)
	ShowRaw(text string)
	ShowResult(improved string, translated string)
	PrependHistory(entry domain.HistoryEntry)
	Alert(message string)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error)
	Name() string
}

// Improver cleans up a raw transcript before translation.
type Improver interface {
	Improve(text string) (string, error)
}
