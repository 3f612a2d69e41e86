package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radio-control/ranger/internal/config"
)

// options carries state shared by subcommands once the root has loaded the
// configuration.
type options struct {
	configFile string
	loader     *config.Loader
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{loader: config.NewLoader()}

	root := &cobra.Command{
		Use:   "ranger",
		Short: "BLE ranging session manager",
		Long: `Ranger connects a session manager to a scan worker that owns the
Bluetooth radio, starts ranging and reports every discovered device.
Repeated sightings are deduplicated in a bounded per-session cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loader.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (YAML)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("backend", "", "scanning backend (fake, bluez, tinygo)")
	flags.String("device", "", "radio device name, e.g. hci0")

	v := opts.loader.Viper()
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("adapter.backend", flags.Lookup("backend"))
	_ = v.BindPFlag("adapter.device", flags.Lookup("device"))

	root.AddCommand(
		newScanCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}
