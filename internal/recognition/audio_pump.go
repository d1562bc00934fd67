package recognition

import (
	"errors"
	"fmt"
	"io"
	"time"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
)

// pumpAudioChunks copies captured PCM into the provider stream until the
// capture ends. The first failure is reported on errs.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	errs chan<- error,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				report(errs, &domain.RecognitionError{
					Code: domain.RecognitionErrorNetwork,
					Err:  fmt.Errorf("failed to stream audio: %w", sendErr),
				})
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				report(errs, &domain.RecognitionError{
					Code: domain.RecognitionErrorAudioCapture,
					Err:  fmt.Errorf("audio capture error: %w", err),
				})
			}
			return
		}
	}
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
