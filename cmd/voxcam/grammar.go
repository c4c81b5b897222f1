package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"voxcam/internal/assets"
	"voxcam/internal/commands"
	"voxcam/internal/config"
)

func (c *cli) grammarCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Print the JSGF grammar built from the command catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := commands.Load(cfg.Commands.Path)
			if err != nil {
				return err
			}
			grammar := catalog.Grammar(cfg.Session.Machine.Grammar)
			if !write {
				fmt.Fprint(cmd.OutOrStdout(), grammar)
				return nil
			}

			path := cfg.Model.Layout.Resolve(cfg.Model.Dir).Grammar
			if err := assets.WriteGrammar(afero.NewOsFs(), path, grammar); err != nil {
				return err
			}
			c.logger.Info().Str("path", path).Int("phrases", len(catalog.Phrases())).Msg("grammar written")
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the grammar into the model directory instead of stdout")
	return cmd
}
