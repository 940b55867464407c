package main

import (
	"fmt"

	"github.com/kylerisse/hostboard/pkg/mount"
	"github.com/spf13/cobra"
)

func newOnceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single load cycle and print the table body",
		Long: `Fetch the host list once and print the rendered hostTableBody markup.

On a failed load the error row is printed and the command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogging(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			buf := mount.NewBuffer()
			w, err := newWidget(cfg, buf, logger)
			if err != nil {
				return err
			}

			loadErr := w.Load(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), buf.Markup())
			return loadErr
		},
	}
}
