package launcher

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"voxcam/internal/domain"
)

// ExecLauncher opens the capture apps by running configured commands.
// The launched process is not waited on by the caller; it is reaped in the background.
type ExecLauncher struct {
	commands map[domain.CaptureKind]string
	logger   zerolog.Logger

	lookPath func(file string) (string, error)
	start    func(path string, args []string) error
}

func NewExecLauncher(photoCommand, videoCommand string, logger zerolog.Logger) *ExecLauncher {
	return &ExecLauncher{
		commands: map[domain.CaptureKind]string{
			domain.CapturePhoto: strings.TrimSpace(photoCommand),
			domain.CaptureVideo: strings.TrimSpace(videoCommand),
		},
		logger:   logger.With().Str("component", "launcher").Logger(),
		lookPath: exec.LookPath,
		start:    startDetached,
	}
}

// LaunchCapture implements ports.CaptureLauncher.
func (l *ExecLauncher) LaunchCapture(ctx context.Context, kind domain.CaptureKind) domain.LaunchResult {
	if ctx.Err() != nil {
		return domain.LaunchUnavailable
	}
	fields := strings.Fields(l.commands[kind])
	if len(fields) == 0 {
		l.logger.Warn().Str("kind", string(kind)).Msg("no capture command configured")
		return domain.LaunchUnavailable
	}
	path, err := l.lookPath(fields[0])
	if err != nil {
		l.logger.Warn().Err(err).Str("kind", string(kind)).Str("command", fields[0]).Msg("capture command not found")
		return domain.LaunchUnavailable
	}
	if err := l.start(path, fields[1:]); err != nil {
		l.logger.Warn().Err(err).Str("kind", string(kind)).Msg("capture command failed to start")
		return domain.LaunchUnavailable
	}
	l.logger.Info().Str("kind", string(kind)).Str("command", path).Msg("capture launched")
	return domain.LaunchLaunched
}

func startDetached(path string, args []string) error {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
