package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show radio status",
		Long:  `Display whether the configured radio is enabled and can scan.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			hw, closeAdapter, err := openAdapter(opts.cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to open %s adapter: %w", opts.cfg.Adapter.Backend, err)
			}
			if closeAdapter != nil {
				defer closeAdapter()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\n", opts.cfg.Adapter.Backend)
			fmt.Fprintf(out, "Device: %s\n", opts.cfg.Adapter.Device)
			fmt.Fprintf(out, "Enabled: %t\n", hw.IsEnabled())
			fmt.Fprintf(out, "Scan supported: %t\n", hw.IsScanSupported())
			return nil
		},
	}
}
