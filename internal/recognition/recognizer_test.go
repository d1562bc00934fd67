package recognition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
	"voicerelay/internal/providers/deepgram"
)

func TestStreamingRecognizerReportsResultOnStop(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- ports.TranscriptEvent{Kind: ports.TranscriptKindFinal, Text: "hello"}
	stream.events <- ports.TranscriptEvent{Kind: ports.TranscriptKindFinal, Text: "world"}
	audio := newBlockingAudioSession([]byte("abcd"))
	provider := &fakeProvider{sessions: []ports.StreamingSession{stream}}

	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{audio}},
		provider,
		Config{Streaming: ports.StreamingConfig{InterimResults: true}},
		discardLogger(),
	)
	if err := rec.Available(); err != nil {
		t.Fatalf("expected available recognizer: %v", err)
	}

	if err := rec.Start(context.Background(), "fr-FR"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)

	if err := rec.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	result := expectEvent(t, rec, domain.RecognitionEventResult)
	if result.Transcript != "hello world" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)

	cfg := provider.lastConfig()
	if cfg.Language != "fr-FR" || cfg.InterimResults {
		t.Fatalf("unexpected streaming config: %+v", cfg)
	}
	if audio.stops() == 0 {
		t.Fatalf("expected audio capture stopped")
	}
	if stream.closeSends() == 0 {
		t.Fatalf("expected send side closed")
	}
}

func TestStreamingRecognizerEndsWhenCaptureEnds(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- ports.TranscriptEvent{Kind: ports.TranscriptKindFinal, Text: "short phrase"}

	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{chunks: [][]byte{[]byte("abc")}}}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)
	if got := expectEvent(t, rec, domain.RecognitionEventResult); got.Transcript != "short phrase" {
		t.Fatalf("unexpected transcript: %q", got.Transcript)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
}

func TestStreamingRecognizerProviderFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{}
	rec := NewStreamingRecognizer(
		capture,
		&fakeProvider{err: errors.New("dial failed")},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := expectEvent(t, rec, domain.RecognitionEventError); got.Code != domain.RecognitionErrorNetwork {
		t.Fatalf("unexpected code: %q", got.Code)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
	if capture.calls != 0 {
		t.Fatalf("audio must not start when the provider is unreachable")
	}
}

func TestStreamingRecognizerAudioFailureClosesStream(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	rec := NewStreamingRecognizer(
		&fakeAudioCapture{err: errors.New("no device")},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := expectEvent(t, rec, domain.RecognitionEventError); got.Code != domain.RecognitionErrorAudioCapture {
		t.Fatalf("unexpected code: %q", got.Code)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
	if stream.closes() == 0 {
		t.Fatalf("expected stream closed after audio failure")
	}
}

func TestStreamingRecognizerNoSpeech(t *testing.T) {
	t.Parallel()

	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		&fakeProvider{sessions: []ports.StreamingSession{newFakeStreamingSession()}},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)
	if got := expectEvent(t, rec, domain.RecognitionEventError); got.Code != domain.RecognitionErrorNoSpeech {
		t.Fatalf("unexpected code: %q", got.Code)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
}

func TestStreamingRecognizerStreamErrorWithoutTranscript(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("stream failed")
	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)
	if got := expectEvent(t, rec, domain.RecognitionEventError); got.Code != domain.RecognitionErrorNetwork {
		t.Fatalf("unexpected code: %q", got.Code)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
}

func TestStreamingRecognizerSilentDeepgramSessionIsNoSpeech(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && strings.Contains(string(payload), "CloseStream") {
				break
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{chunks: [][]byte{make([]byte, 320)}}}},
		deepgram.NewProvider(deepgram.Config{APIKey: "secret", APIBaseURL: server.URL}),
		Config{StreamTimeout: 2 * time.Second},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)
	if got := expectEvent(t, rec, domain.RecognitionEventError); got.Code != domain.RecognitionErrorNoSpeech {
		t.Fatalf("expected %q after a normal close, got %q", domain.RecognitionErrorNoSpeech, got.Code)
	}
	expectEvent(t, rec, domain.RecognitionEventEnd)
}

func TestStreamingRecognizerRejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	audio := newBlockingAudioSession()
	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{audio}},
		&fakeProvider{sessions: []ports.StreamingSession{newFakeStreamingSession()}},
		Config{},
		discardLogger(),
	)
	if err := rec.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)

	err := rec.Start(context.Background(), "en-US")
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if code := errorCode(err, ""); code != domain.RecognitionErrorInvalidState {
		t.Fatalf("unexpected code: %q", code)
	}

	_ = rec.Stop()
	expectEvent(t, rec, domain.RecognitionEventError)
	expectEvent(t, rec, domain.RecognitionEventEnd)
}

func TestStreamingRecognizerStopWithoutCaptureIsNoop(t *testing.T) {
	t.Parallel()

	rec := NewStreamingRecognizer(&fakeAudioCapture{}, &fakeProvider{}, Config{}, discardLogger())
	if err := rec.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case event := <-rec.Events():
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStreamingRecognizerAbortsOnCancel(t *testing.T) {
	t.Parallel()

	audio := newBlockingAudioSession()
	stream := newFakeStreamingSession()
	rec := NewStreamingRecognizer(
		&fakeAudioCapture{sessions: []ports.AudioSession{audio}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		Config{},
		discardLogger(),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rec.Start(ctx, "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	expectEvent(t, rec, domain.RecognitionEventStart)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for stream.closes() == 0 || audio.stops() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected capture torn down after cancel")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestUnavailableReportsCapabilityError(t *testing.T) {
	t.Parallel()

	u := Unavailable{Reason: errors.New("no recorder")}
	if err := u.Available(); !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if err := u.Start(context.Background(), "en-US"); !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("expected start to fail, got %v", err)
	}
	if u.Events() != nil {
		t.Fatalf("expected no event channel")
	}
}

func TestDetectSelectsImplementation(t *testing.T) {
	t.Parallel()

	found := func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	missing := func(string) (string, error) { return "", errors.New("not found") }

	cases := []struct {
		name      string
		probe     Probe
		available bool
	}{
		{name: "ready", probe: Probe{RecorderBinary: "ffmpeg", APIKey: "key", LookPath: found}, available: true},
		{name: "missing key", probe: Probe{RecorderBinary: "ffmpeg", LookPath: found}},
		{name: "missing recorder", probe: Probe{RecorderBinary: "ffmpeg", APIKey: "key", LookPath: missing}},
		{name: "empty recorder", probe: Probe{APIKey: "key", LookPath: found}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := Detect(tc.probe, &fakeAudioCapture{}, &fakeProvider{}, Config{}, discardLogger())
			err := rec.Available()
			if tc.available && err != nil {
				t.Fatalf("expected available, got %v", err)
			}
			if !tc.available && !errors.Is(err, domain.ErrCapabilityUnavailable) {
				t.Fatalf("expected unavailable, got %v", err)
			}
		})
	}
}

func expectEvent(t *testing.T, rec *StreamingRecognizer, kind domain.RecognitionEventKind) domain.RecognitionEvent {
	t.Helper()
	select {
	case event := <-rec.Events():
		if event.Kind != kind {
			t.Fatalf("expected %s event, got %+v", kind, event)
		}
		return event
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s event", kind)
	}
	return domain.RecognitionEvent{}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error

	// block makes Read wait for Stop once chunks run out.
	block   bool
	stopped chan struct{}
}

func newBlockingAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, block: true, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		chunk := f.chunks[f.index]
		f.index++
		f.mu.Unlock()
		return copy(p, chunk), nil
	}
	block := f.block
	f.mu.Unlock()

	if block {
		<-f.stopped
	}
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopCalls == 0 && f.stopped != nil {
		close(f.stopped)
	}
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
	configs  []ports.StreamingConfig
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeProvider) lastConfig() ports.StreamingConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.configs) == 0 {
		return ports.StreamingConfig{}
	}
	return f.configs[len(f.configs)-1]
}

type fakeStreamingSession struct {
	events     chan ports.TranscriptEvent
	waitErr    error
	mu         sync.Mutex
	closeSend  int
	closeCalls int
	closed     bool
	sent       int
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan ports.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent += len(chunk)
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) Events() <-chan ports.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) closeSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSend
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeStreamingSession) sentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}
