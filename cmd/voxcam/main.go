package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voxcam/internal/logging"
)

var version = "dev"

type rootFlags struct {
	logPath   string
	logLevel  string
	noLogFile bool
	verbose   bool
}

type cli struct {
	flags  rootFlags
	logger zerolog.Logger
	closer io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zerolog.Nop()}
	rootCmd := &cobra.Command{
		Use:   "voxcam",
		Short: "Hands-free voice commands for the camera",
		Long: `voxcam listens for a small set of spoken commands and opens the camera.

Listen on the microphone:   voxcam run
Drive it from the keyboard: voxcam simulate
Print the JSGF grammar:     voxcam grammar`,
		SilenceUsage:       true,
		PersistentPreRunE:  c.initLogging,
		PersistentPostRunE: c.closeLogging,
	}

	rootCmd.PersistentFlags().StringVar(&c.flags.logPath, "log-path", "", "directory for diagnostics_log.txt (default $VOXCAM_LOG_PATH or the OS log dir)")
	rootCmd.PersistentFlags().StringVar(&c.flags.logLevel, "log-level", "", "log level (default $VOXCAM_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().BoolVar(&c.flags.noLogFile, "no-log-file", false, "log to stderr only")
	rootCmd.PersistentFlags().BoolVarP(&c.flags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voxcam %s\n", version)
		},
	})
	rootCmd.AddCommand(c.runCmd())
	rootCmd.AddCommand(c.simulateCmd())
	rootCmd.AddCommand(c.grammarCmd())
	return rootCmd
}

func (c *cli) initLogging(cmd *cobra.Command, _ []string) error {
	level := c.flags.logLevel
	if level == "" {
		level = os.Getenv("VOXCAM_LOG_LEVEL")
	}
	if c.flags.verbose {
		level = "debug"
	}

	dir := ""
	if !c.flags.noLogFile {
		resolved, err := logging.ResolveDir(c.flags.logPath)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: log directory unavailable: %v\n", err)
		} else {
			dir = resolved
		}
	}

	logger, closer, err := logging.New(logging.Options{
		Level:   level,
		Dir:     dir,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	c.logger = logger
	c.closer = closer
	c.logger.Debug().Str("version", version).Str("command", cmd.Name()).Str("log_dir", dir).Msg("voxcam starting")
	return nil
}

func (c *cli) closeLogging(_ *cobra.Command, _ []string) error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
