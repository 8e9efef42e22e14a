package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/logging"
)

func newScanCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Sweep the local networks once and list the BleBox devices found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.Logging.Output = "stderr"
			log := logging.New(cfg.Logging, version)

			c, err := buildCore(cfg.BleBox, log)
			if err != nil {
				return err
			}
			defer c.scheduler.Close()
			defer c.registry.StopAll()

			stats, err := c.scanner.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			log.Info("sweep complete", "probed", stats.Probed, "found", stats.Found, "duration", stats.Duration)

			return printDevices(cmd.OutOrStdout(), c.registry.List(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print devices as JSON")
	return cmd
}

func newRangeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "range",
		Short: "Print the addresses a sweep would probe, in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.Logging.Output = "stderr"

			c, err := buildCore(cfg.BleBox, logging.New(cfg.Logging, version))
			if err != nil {
				return err
			}
			defer c.scheduler.Close()

			targets, err := c.scanner.Targets()
			if err != nil {
				return fmt.Errorf("listing interfaces: %w", err)
			}
			return printLines(cmd.OutOrStdout(), targets)
		},
	}
}

func printDevices(w io.Writer, devices []blebox.Snapshot, asJSON bool) error {
	if asJSON {
		if devices == nil {
			devices = []blebox.Snapshot{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tADDRESS\tNAME\tRESPONDING")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", d.ID, d.Type, d.Address, d.Name, d.Responding)
	}
	return tw.Flush()
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
