package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"voicerelay/internal/ports"
)

const (
	startupProbe = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// FFMPEGCapture streams microphone PCM (s16le) from an ffmpeg-compatible recorder.
type FFMPEGCapture struct {
	binary    string
	extraArgs []string
}

// ParseRecorderCommand splits a recorder command line such as
// `ffmpeg -thread_queue_size 512` into the binary and its leading arguments.
func ParseRecorderCommand(command string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "ffmpeg", nil, nil
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return "", nil, fmt.Errorf("parse recorder command: %w", err)
	}
	if len(args) == 0 {
		return "", nil, errors.New("recorder command is empty")
	}
	return args[0], args[1:], nil
}

func NewFFMPEGCapture(command string) (*FFMPEGCapture, error) {
	binary, extra, err := ParseRecorderCommand(command)
	if err != nil {
		return nil, err
	}
	return &FFMPEGCapture{binary: binary, extraArgs: extra}, nil
}

// Binary is the executable the capture runs.
func (c *FFMPEGCapture) Binary() string {
	return c.binary
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.binary, c.args(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("recorder exited before capture started")
	case <-time.After(startupProbe):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func (c *FFMPEGCapture) args(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := append([]string{}, c.extraArgs...)
	return append(args,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder, escalating to kill after a grace period.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
	})

	return s.stopErr
}

// normalizeStopErr drops the exit status a recorder reports after being interrupted.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return strings.TrimSpace(input)
}
