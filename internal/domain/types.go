package domain

import (
	"errors"
	"fmt"
)

// RecordingState models the capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateStarting  RecordingState = "starting"
	RecordingStateListening RecordingState = "listening"
	RecordingStateStopping  RecordingState = "stopping"
)

// RecognitionEventKind identifies a notification from the speech recognizer.
type RecognitionEventKind string

const (
	RecognitionEventStart  RecognitionEventKind = "start"
	RecognitionEventEnd    RecognitionEventKind = "end"
	RecognitionEventResult RecognitionEventKind = "result"
	RecognitionEventError  RecognitionEventKind = "error"
)

// RecognitionEvent is emitted by a recognizer. Transcript is set for results, Code for errors.
type RecognitionEvent struct {
	Kind       RecognitionEventKind `json:"kind"`
	Transcript string               `json:"transcript,omitempty"`
	Code       string               `json:"code,omitempty"`
}

// Recognition error codes.
const (
	RecognitionErrorNetwork      = "network"
	RecognitionErrorAudioCapture = "audio-capture"
	RecognitionErrorNoSpeech     = "no-speech"
	RecognitionErrorAborted      = "aborted"
	RecognitionErrorInvalidState = "invalid-state"
)

// ErrCapabilityUnavailable means the platform has no usable speech recognizer.
var ErrCapabilityUnavailable = errors.New("speech recognition capability unavailable")

// RecognitionError carries a recognizer-defined error code.
type RecognitionError struct {
	Code string
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return "speech recognition error: " + e.Code
	}
	return fmt.Sprintf("speech recognition error: %s: %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// RecordingSession is the transient UI state owned by the controller.
type RecordingSession struct {
	State          RecordingState `json:"state"`
	IsRecording    bool           `json:"isRecording"`
	InputLanguage  string         `json:"inputLanguage"`
	OutputLanguage string         `json:"outputLanguage"`
}

// TranscriptResult is what the output regions currently show.
type TranscriptResult struct {
	RawText        string `json:"rawText"`
	ImprovedText   string `json:"improvedText"`
	TranslatedText string `json:"translatedText"`
}

// HistoryEntry records one completed capture and translate round trip.
type HistoryEntry struct {
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"`
	RawText        string `json:"rawText"`
	ImprovedText   string `json:"improvedText"`
	TranslatedText string `json:"translatedText"`
}

// Line renders the entry the way the history list shows it.
func (e HistoryEntry) Line() string {
	return e.Timestamp + " — " + e.RawText + " → " + e.TranslatedText
}

// ProcessRequest is the body sent to the processing endpoint.
type ProcessRequest struct {
	Text       string `json:"text"`
	InputLang  string `json:"input_lang"`
	OutputLang string `json:"output_lang"`
}

// ProcessResponse is the body returned by the processing endpoint.
type ProcessResponse struct {
	ImprovedText   string `json:"improved_text"`
	TranslatedText string `json:"translated_text"`
}

// Snapshot summarizes the controller state for the UI.
type Snapshot struct {
	Session   RecordingSession `json:"session"`
	Supported bool             `json:"supported"`
	Status    string           `json:"status"`
	Label     string           `json:"label"`
	Result    TranscriptResult `json:"result"`
	History   []HistoryEntry   `json:"history"`
}
