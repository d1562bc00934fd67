package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
)

// Config holds the initial language selections.
type Config struct {
	InputLanguage  string
	OutputLanguage string
}

// Controller owns the recording session and relays recognized transcripts to
// the processing endpoint. All state is mutated by the Run goroutine only;
// public methods post messages to it.
type Controller struct {
	recognizer ports.Recognizer
	processor  ports.Processor
	view       ports.View
	log        *slog.Logger
	clock      func() time.Time
	newID      func() string

	inbox    chan message
	inflight sync.WaitGroup

	supported bool
	session   domain.RecordingSession
	status    string
	label     string
	result    domain.TranscriptResult
	history   []domain.HistoryEntry
	seq       uint64

	// staleEnd is set after a recognizer error; that attempt's trailing end
	// must not reset a capture started in between.
	staleEnd bool
}

type message interface{}

type toggleMsg struct{}

type languagesMsg struct {
	input  string
	output string
}

type submissionMsg struct {
	seq  uint64
	req  domain.ProcessRequest
	resp domain.ProcessResponse
	err  error
}

type snapshotMsg struct {
	reply chan domain.Snapshot
}

func NewController(
	recognizer ports.Recognizer,
	processor ports.Processor,
	view ports.View,
	logger *slog.Logger,
	cfg Config,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InputLanguage == "" {
		cfg.InputLanguage = "en-US"
	}
	if cfg.OutputLanguage == "" {
		cfg.OutputLanguage = "en"
	}

	c := &Controller{
		recognizer: recognizer,
		processor:  processor,
		view:       view,
		log:        logger,
		clock:      time.Now,
		newID:      uuid.NewString,
		inbox:      make(chan message),
		supported:  true,
		session: domain.RecordingSession{
			State:          domain.RecordingStateIdle,
			InputLanguage:  cfg.InputLanguage,
			OutputLanguage: cfg.OutputLanguage,
		},
		status: StatusIdle,
		label:  LabelStart,
	}

	if err := recognizer.Available(); err != nil {
		c.supported = false
		c.status = StatusUnsupported
		logger.Warn("speech recognition unavailable", slog.String("error", err.Error()))
	}
	return c
}

// Run processes toggles, recognizer notifications and submission results until
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.view.SetStatus(c.status)
	c.view.SetToggle(c.label, false)

	var events <-chan domain.RecognitionEvent
	if c.supported {
		events = c.recognizer.Events()
	}

	for {
		select {
		case <-ctx.Done():
			c.inflight.Wait()
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleRecognition(ctx, event)
		case msg := <-c.inbox:
			c.handle(ctx, msg)
		}
	}
}

// Toggle starts recording when idle and requests a stop otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.send(ctx, toggleMsg{})
}

// SetLanguages changes the language selections. Empty values are left unchanged.
func (c *Controller) SetLanguages(ctx context.Context, input string, output string) error {
	return c.send(ctx, languagesMsg{input: strings.TrimSpace(input), output: strings.TrimSpace(output)})
}

// Snapshot returns the current session, outputs and history.
func (c *Controller) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	reply := make(chan domain.Snapshot, 1)
	if err := c.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return domain.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
}

func (c *Controller) send(ctx context.Context, msg message) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case toggleMsg:
		c.toggle(ctx)
	case languagesMsg:
		if m.input != "" {
			c.session.InputLanguage = m.input
		}
		if m.output != "" {
			c.session.OutputLanguage = m.output
		}
	case submissionMsg:
		c.finishSubmission(m)
	case snapshotMsg:
		m.reply <- c.snapshot()
	}
}

func (c *Controller) toggle(ctx context.Context) {
	if !c.supported {
		c.view.Alert(AlertUnsupported)
		return
	}

	if !c.session.IsRecording {
		c.session.IsRecording = true
		c.session.State = domain.RecordingStateStarting
		c.setStatus(StatusStarting)
		c.setToggle(LabelStop, true)

		if err := c.recognizer.Start(ctx, c.session.InputLanguage); err != nil {
			c.recognitionFailed(errorCode(err))
		}
		return
	}

	// The flag is cleared by the recognizer's end or error notification.
	c.session.State = domain.RecordingStateStopping
	c.setStatus(StatusStopping)
	if err := c.recognizer.Stop(); err != nil {
		c.log.Warn("stop recognition failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) handleRecognition(ctx context.Context, event domain.RecognitionEvent) {
	switch event.Kind {
	case domain.RecognitionEventStart:
		if c.session.State == domain.RecordingStateStarting {
			c.session.State = domain.RecordingStateListening
		}
		c.setStatus(StatusListening)
	case domain.RecognitionEventResult:
		c.log.Debug("recognized transcript", slog.String("transcript", event.Transcript))
		c.result.RawText = event.Transcript
		c.view.ShowRaw(event.Transcript)
		c.submit(ctx, event.Transcript)
	case domain.RecognitionEventEnd:
		if c.staleEnd {
			c.staleEnd = false
			return
		}
		c.resetRecording()
		if c.status == StatusListening {
			c.setStatus(StatusFinished)
		}
	case domain.RecognitionEventError:
		c.recognitionFailed(event.Code)
		c.staleEnd = true
	}
}

func (c *Controller) recognitionFailed(code string) {
	c.log.Warn("speech recognition error", slog.String("code", code))
	c.setStatus(RecognitionErrorStatus(code))
	c.resetRecording()
}

func (c *Controller) resetRecording() {
	c.session.IsRecording = false
	c.session.State = domain.RecordingStateIdle
	c.setToggle(LabelStart, false)
}

// submit posts the transcript on its own goroutine. Overlapping submissions are
// allowed; whichever completes last owns the result regions.
func (c *Controller) submit(ctx context.Context, text string) {
	c.seq++
	seq := c.seq
	req := domain.ProcessRequest{
		Text:       text,
		InputLang:  c.session.InputLanguage,
		OutputLang: c.session.OutputLanguage,
	}
	c.setStatus(StatusSending)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		resp, err := c.processor.Process(ctx, req)
		select {
		case c.inbox <- submissionMsg{seq: seq, req: req, resp: resp, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) finishSubmission(m submissionMsg) {
	if m.err != nil {
		c.log.Error("backend error",
			slog.Uint64("submission", m.seq),
			slog.String("error", m.err.Error()),
		)
		c.setStatus(StatusServerError)
		return
	}

	c.result.ImprovedText = m.resp.ImprovedText
	c.result.TranslatedText = m.resp.TranslatedText
	c.view.ShowResult(m.resp.ImprovedText, m.resp.TranslatedText)

	entry := domain.HistoryEntry{
		ID:             c.newID(),
		Timestamp:      c.clock().Format(historyTimeLayout),
		RawText:        m.req.Text,
		ImprovedText:   m.resp.ImprovedText,
		TranslatedText: m.resp.TranslatedText,
	}
	c.history = prependHistory(c.history, entry)
	c.view.PrependHistory(entry)

	c.setStatus(StatusDone)
}

func (c *Controller) setStatus(text string) {
	c.status = text
	c.view.SetStatus(text)
}

func (c *Controller) setToggle(label string, recording bool) {
	c.label = label
	c.view.SetToggle(label, recording)
}

func (c *Controller) snapshot() domain.Snapshot {
	history := make([]domain.HistoryEntry, len(c.history))
	copy(history, c.history)
	return domain.Snapshot{
		Session:   c.session,
		Supported: c.supported,
		Status:    c.status,
		Label:     c.label,
		Result:    c.result,
		History:   history,
	}
}

func prependHistory(history []domain.HistoryEntry, entry domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(history)+1)
	out = append(out, entry)
	return append(out, history...)
}

func errorCode(err error) string {
	var recErr *domain.RecognitionError
	if errors.As(err, &recErr) && recErr.Code != "" {
		return recErr.Code
	}
	return domain.RecognitionErrorInvalidState
}
