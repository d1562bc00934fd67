package recognition

import (
	"errors"
	"io"
	"testing"
	"time"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
)

func TestPumpAudioChunksReportsSendErrorAsNetwork(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := &sendErrStream{err: errors.New("send failed")}
	errs := make(chan error, 1)
	done := make(chan struct{})

	go pumpAudioChunks(audio, stream, 256, errs, done)
	<-done

	err := <-errs
	var recErr *domain.RecognitionError
	if !errors.As(err, &recErr) || recErr.Code != domain.RecognitionErrorNetwork {
		t.Fatalf("expected network recognition error, got %v", err)
	}
}

func TestPumpAudioChunksReportsReadErrorAsAudioCapture(t *testing.T) {
	t.Parallel()

	audio := &errorAudioSession{err: errors.New("read failed")}
	errs := make(chan error, 1)
	done := make(chan struct{})

	go pumpAudioChunks(audio, &sendErrStream{}, 256, errs, done)
	<-done

	if code := errorCode(<-errs, ""); code != domain.RecognitionErrorAudioCapture {
		t.Fatalf("expected audio-capture, got %q", code)
	}
}

func TestPumpAudioChunksEOFIsClean(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc"), []byte("def")}}
	stream := newFakeStreamingSession()
	errs := make(chan error, 1)
	done := make(chan struct{})

	go pumpAudioChunks(audio, stream, 256, errs, done)
	<-done

	select {
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
	if got := stream.sentBytes(); got != 6 {
		t.Fatalf("expected 6 bytes forwarded, got %d", got)
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

type sendErrStream struct {
	err error
}

func (s *sendErrStream) SendAudio(_ []byte) error { return s.err }
func (s *sendErrStream) CloseSend() error         { return nil }
func (s *sendErrStream) Events() <-chan ports.TranscriptEvent {
	ch := make(chan ports.TranscriptEvent)
	close(ch)
	return ch
}
func (s *sendErrStream) Wait() error  { return nil }
func (s *sendErrStream) Close() error { return nil }

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan ports.TranscriptEvent {
	ch := make(chan ports.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}

var _ io.ReadCloser = (*errorAudioSession)(nil)
