package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"voicerelay/internal/ports"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultModel   = "nova-2"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Punctuate   bool
}

// Provider implements ports.TranscriptionProvider for Deepgram live streaming.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// StartStreaming opens a live session. A non-empty cfg.Language overrides the
// provider default for this session only.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to Deepgram websocket (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := newStreamingSession(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events    chan ports.TranscriptEvent
	audio     chan []byte
	sendDone  chan struct{}
	writeDone chan struct{}
	done      chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

var errSendClosed = errors.New("audio stream is already closed")

func newStreamingSession(conn *websocket.Conn) *streamingSession {
	s := &streamingSession{
		conn:      conn,
		events:    make(chan ports.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		sendDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		done:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

// SendAudio queues a chunk for the write loop. It never blocks past
// CloseSend or a failed write.
func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errSendClosed
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errSendClosed
	case <-s.writeDone:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend flushes queued audio and asks Deepgram to finalize the stream.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() { close(s.sendDone) })
	return nil
}

func (s *streamingSession) Events() <-chan ports.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()
	defer close(s.writeDone)

	for {
		select {
		case chunk := <-s.audio:
			if err := s.write(chunk); err != nil {
				return
			}
		case <-s.sendDone:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.write(chunk); err != nil {
						return
					}
				default:
					if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
						s.setErr(fmt.Errorf("failed to close stream: %w", err))
					}
					return
				}
			}
		}
	}
}

func (s *streamingSession) write(chunk []byte) error {
	err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
	if err != nil {
		s.setErr(fmt.Errorf("failed to send audio: %w", err))
	}
	return err
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg liveMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = strings.TrimSpace(msg.Description)
			}
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		transcript := msg.transcript()
		if transcript == "" {
			continue
		}

		event := ports.TranscriptEvent{Kind: ports.TranscriptKindPartial, Text: transcript}
		if msg.IsFinal || msg.SpeechFinal {
			event.Kind = ports.TranscriptKindFinal
		}
		s.emit(event)
	}
}

func (s *streamingSession) emit(event ports.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
	}
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type channel struct {
	Alternatives []alternative `json:"alternatives"`
}

// liveMessage covers the live "Results" and "Error" payloads plus the
// pre-recorded response shape some proxies forward.
type liveMessage struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Description string  `json:"description"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     channel `json:"channel"`
	Results     struct {
		Channels []channel `json:"channels"`
	} `json:"results"`
}

func (m liveMessage) transcript() string {
	if text := firstTranscript(m.Channel); text != "" {
		return text
	}
	if len(m.Results.Channels) > 0 {
		return firstTranscript(m.Results.Channels[0])
	}
	return ""
}

func firstTranscript(c channel) string {
	if len(c.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Alternatives[0].Transcript)
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	language := strings.TrimSpace(streamCfg.Language)
	if language == "" {
		language = strings.TrimSpace(providerCfg.Language)
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Punctuate {
		query.Set("punctuate", "true")
	}
	if language != "" {
		query.Set("language", language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
