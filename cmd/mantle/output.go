package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("group", "g", nil, "Target group (repeatable or comma separated)")
	cmd.Flags().StringSliceP("node", "n", nil, "Target node xname (repeatable or comma separated)")
}

func targetsFrom(cmd *cobra.Command) (groups, nodes []string, err error) {
	groups, _ = cmd.Flags().GetStringSlice("group")
	nodes, _ = cmd.Flags().GetStringSlice("node")
	if len(groups) == 0 && len(nodes) == 0 {
		return nil, nil, fmt.Errorf("at least one --group or --node is required")
	}
	return groups, nodes, nil
}

// wantYAML reports whether structured output was requested
func wantYAML(cmd *cobra.Command) (bool, error) {
	format, _ := cmd.Flags().GetString("output")
	switch strings.ToLower(format) {
	case "", "table":
		return false, nil
	case "yaml":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported output format %q", format)
	}
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
