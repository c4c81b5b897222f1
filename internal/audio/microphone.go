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

	"github.com/rs/zerolog"

	"voxcam/internal/ports"
)

const (
	DefaultSampleRate = 16000
	DefaultChunkSize  = 4096
)

// Microphone captures mono 16-bit PCM through an ffmpeg child process.
type Microphone struct {
	command    string
	startGrace time.Duration
	stopGrace  time.Duration
	logger     zerolog.Logger
}

func NewMicrophone(command string, logger zerolog.Logger) *Microphone {
	if command == "" {
		command = "ffmpeg"
	}
	return &Microphone{
		command:    command,
		startGrace: 250 * time.Millisecond,
		stopGrace:  1200 * time.Millisecond,
		logger:     logger.With().Str("component", "microphone").Logger(),
	}
}

// Start launches capture. The process is considered healthy once it survives
// the start grace period.
func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	args := captureArgs(cfg)
	cmd := exec.CommandContext(ctx, m.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", m.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("capture exited before it started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("capture exited before it started")
	case <-time.After(m.startGrace):
	}

	m.logger.Debug().Str("format", args[7]).Str("device", args[9]).Msg("microphone capture started")
	return &captureSession{
		stdout:    stdout,
		stderr:    &stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		stopGrace: m.stopGrace,
	}, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
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
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-fflags", "nobuffer",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type captureSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process   *os.Process
	waitErr   <-chan error
	stopGrace time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	return s.Stop()
}

// Stop interrupts the process, escalating to kill after the grace period. Idempotent.
func (s *captureSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = ignoreExitStatus(err)
			}
		case <-time.After(s.stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = ignoreExitStatus(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

func ignoreExitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Pump reads fixed-size chunks from src and hands each to send until src is
// exhausted or send fails. A clean EOF returns nil.
func Pump(src io.Reader, chunkSize int, send func([]byte) error) error {
	if chunkSize < 256 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if sendErr := send(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}
