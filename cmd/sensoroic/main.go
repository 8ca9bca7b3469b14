// Sensoroic discovers OIC resources on nearby devices.
//
// A discovery session scans for Bluetooth LE devices advertising the OIC
// GATT service, queries each of them in turn, then sends one CoAP
// multicast query over IP. Resources are printed grouped into sensors,
// smart devices and everything else.
//
// Usage:
//
//	sensoroic [command] [flags]
//
// Running without arguments is the same as 'sensoroic discover'.
// See 'sensoroic --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/version"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sensoroic",
	Short: "OIC resource discovery over Bluetooth LE and IP",
	Long: `Discover OIC resources on sensors and smart devices.

A session scans for Bluetooth LE devices advertising the OIC GATT service,
queries each one over GATT, then sends a CoAP multicast query over IP
(optionally browsing DNS-SD as well). Known hosts are remembered in the
configuration file.

If no command is specified, discovery runs with the configured defaults.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		if configPath != "" {
			return os.Setenv(config.EnvConfigPath, configPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: "+defaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty, see "+logging.LogLevelEnvVar)

	addDiscoverFlags(rootCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	path, err := config.GetConfigPath()
	if err != nil {
		return "unknown"
	}
	return path
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sensoroic %s\n", version.Full())
	},
}
