package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voxcam/internal/bootstrap"
	"voxcam/internal/domain"
)

func (c *cli) runCmd() *cobra.Command {
	var background bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for voice commands until interrupted",
		Long: `Run initializes the recognizer and listens for commands.

Without --background the session starts in the foreground and listens right away.
Lifecycle changes can be sent over MQTT or the HTTP API when they are configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			services, err := bootstrap.Build(bootstrap.Options{Logger: c.logger})
			if err != nil {
				return err
			}
			if !background {
				services.Controller.Signal(domain.LifecycleForeground)
			}
			c.logger.Info().
				Str("engine", services.Config.Engine.Kind).
				Str("launcher", services.Config.Launcher.Mode).
				Bool("mqtt", services.Bridge != nil).
				Str("http", services.Config.HTTP.Addr).
				Msg("session starting")
			return services.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "start suspended and wait for a foreground signal")
	return cmd
}
