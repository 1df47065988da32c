package cmd

import (
	"encoding/json"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/stopwatch/pkg/sysinfo"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Show the host details attached to reports",
	Args:  cobra.NoArgs,
	RunE:  runSysinfo,
}

func init() {
	rootCmd.AddCommand(sysinfoCmd)
}

func runSysinfo(cmd *cobra.Command, args []string) error {
	host := sysinfo.Detect(cmd.Context())
	out := cmd.OutOrStdout()

	switch cfg.Output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(host)
	case "yaml":
		return yaml.NewEncoder(out).Encode(host)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Property", "Value")
	for _, row := range host.Rows() {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
