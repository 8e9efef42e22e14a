// Gray Logic BleBox bridge
//
// This is the main entry point for the BleBox bridge: it discovers BleBox
// devices on the local networks, polls them, and exposes them to Gray Logic
// over MQTT and a REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides the config path when --config is not given.
const configEnvVar = "GRAYLOGIC_BLEBOX_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "graylogic-blebox",
		Short: "BleBox device bridge for Gray Logic",
		Long: `graylogic-blebox discovers BleBox devices on the local IPv4 networks,
keeps their state fresh by polling, and publishes it to Gray Logic over MQTT.
Without a subcommand it runs the bridge (same as "serve").`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("graylogic-blebox %s (commit %s, built %s)\n", version, commit, date))
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file path (env: "+configEnvVar+", default: "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newScanCmd(opts),
		newRangeCmd(opts),
		newTypesCmd(),
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-blebox %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns the configuration file path: the --config flag, then
// GRAYLOGIC_BLEBOX_CONFIG, then the default. An empty result means the
// default path does not exist and built-in defaults should be used.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// loadConfig loads the file named by getConfigPath, or built-in defaults.
func loadConfig(opts *options) (*config.Config, string, error) {
	path := getConfigPath(opts.configPath)
	if path == "" {
		cfg, err := config.Default()
		if err != nil {
			return nil, "", fmt.Errorf("loading default config: %w", err)
		}
		return cfg, "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}
