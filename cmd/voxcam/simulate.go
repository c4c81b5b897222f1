package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"voxcam/internal/bootstrap"
	"voxcam/internal/domain"
	"voxcam/internal/notify"
	"voxcam/internal/ports"
	"voxcam/internal/providers/simengine"
)

const simulateHelp = `commands:
  say [score=N] <text>   speak a full utterance (default score -1500)
  mumble                 utterance with no hypothesis
  hang                   speech that never produces a final result
  error [message]        recognizer runtime error
  timeout                recognizer timeout
  fg | bg                foreground / background
  status                 print the session snapshot
  wait <ms>              pause the script
  quit                   tear down and exit`

func (c *cli) simulateCmd() *cobra.Command {
	var (
		initFailures int
		noCamera     bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a session from stdin with a scripted recognizer",
		Long:  "Simulate runs the real session loop against a scripted recognizer.\n\n" + simulateHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := &syncWriter{w: cmd.OutOrStdout()}
			engine := simengine.New(initFailures, c.logger)
			services, err := bootstrap.Build(bootstrap.Options{
				Logger:   c.logger,
				Engine:   engine,
				Launcher: consoleLauncher{available: !noCamera, out: out},
				Notifier: consoleNotifier(out),
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- services.Run(ctx) }()

			services.Controller.Signal(domain.LifecycleForeground)
			scriptErr := runScript(ctx, services.Controller, engine, cmd.InOrStdin(), out)

			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(5 * time.Second):
				cancel()
				<-done
			}
			return scriptErr
		},
	}
	cmd.Flags().IntVar(&initFailures, "init-failures", 0, "number of initializations that fail before one succeeds")
	cmd.Flags().BoolVar(&noCamera, "no-camera", false, "report every capture launch as unavailable")
	return cmd
}

type scriptSession interface {
	ports.LifecycleSink
	ports.StatusSource
}

// runScript reads one command per line until quit or EOF, then tears the session down.
func runScript(ctx context.Context, session scriptSession, engine *simengine.Engine, in io.Reader, out io.Writer) error {
	defer session.Signal(domain.LifecycleTeardown)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		handled, err := engine.Exec(line)
		if handled {
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}

		verb, rest, _ := strings.Cut(line, " ")
		switch strings.ToLower(verb) {
		case "quit", "exit", "teardown":
			return nil
		case "help":
			fmt.Fprintln(out, simulateHelp)
		case "status":
			body, err := json.Marshal(session.Status())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", body)
		case "wait":
			ms, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil || ms < 0 {
				fmt.Fprintf(out, "! wait needs a millisecond count\n")
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(ms) * time.Millisecond):
			}
		case "fg":
			session.Signal(domain.LifecycleForeground)
		case "bg":
			session.Signal(domain.LifecycleBackground)
		default:
			signal, err := domain.ParseLifecycleSignal(verb)
			if err != nil {
				fmt.Fprintf(out, "! unknown command %q (try help)\n", verb)
				continue
			}
			if signal == domain.LifecycleTeardown {
				return nil
			}
			session.Signal(signal)
		}
	}
	return scanner.Err()
}

func consoleNotifier(out io.Writer) ports.Notifier {
	return notify.EmitFunc(func(msg notify.Message) {
		switch msg.Kind {
		case notify.KindSpeech:
			fmt.Fprintf(out, "[say] %s\n", msg.Text)
		default:
			fmt.Fprintf(out, "[status] %s\n", msg.Text)
		}
	})
}

type consoleLauncher struct {
	available bool
	out       io.Writer
}

func (l consoleLauncher) LaunchCapture(_ context.Context, kind domain.CaptureKind) domain.LaunchResult {
	if !l.available {
		fmt.Fprintf(l.out, "[launch] no %s app\n", kind)
		return domain.LaunchUnavailable
	}
	fmt.Fprintf(l.out, "[launch] %s app opened; type fg to return\n", kind)
	return domain.LaunchLaunched
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
