package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
)

func newTypesCmd() *cobra.Command {
	var commands bool

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the supported device types and their controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if commands {
				return printCommands(cmd.OutOrStdout())
			}
			return printFamilies(cmd.OutOrStdout(), blebox.DefaultFamilies())
		},
	}
	cmd.Flags().BoolVar(&commands, "commands", false, "list the device command catalogue instead")
	return cmd
}

func printFamilies(w io.Writer, fs blebox.Families) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATE\tCONTROLS")
	for _, typ := range fs.Types() {
		a, _ := fs.Lookup(typ)
		controls := strings.Join(a.Describe().Controls, ",")
		if controls == "" {
			controls = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", typ, a.StateCommand().Name, controls)
	}
	return tw.Flush()
}

func printCommands(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tMETHOD\tPATH\tPARAMS")
	for _, name := range blebox.CommandNames() {
		c, _ := blebox.LookupCommand(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.Name, c.Method, c.Path, c.Placeholders())
	}
	return tw.Flush()
}
