package main

import (
	"github.com/spf13/cobra"

	"newstrader/internal/app"
)

func newRunCmd(ro *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine; loops when loop.enabled is set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			if once {
				cfg.Loop.Enabled = false
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "force a single pass even when loop.enabled is set")
	return cmd
}

func newScanCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the universe once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			return a.ScanOnce(ctx)
		},
	}
}
