package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/manager"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Query cluster state",
}

var getConfigurationsCmd = &cobra.Command{
	Use:     "configurations",
	Aliases: []string{"configs"},
	Short:   "List configurations applied to or built for groups and nodes",
	Long: `List the configurations relevant to the given groups and nodes.

A configuration is relevant when a boot template, a configuration session or
a node's desired configuration ties it to a target, or when its name contains
a target name. Results are ordered oldest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, nodes, err := targetsFrom(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		mostRecent, _ := cmd.Flags().GetBool("most-recent")

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		configs, err := s.mgr.Configurations(cmd.Context(), manager.ConfigurationQuery{
			Groups: groups, Nodes: nodes, Limit: limit, MostRecent: mostRecent,
		})
		if err != nil {
			return err
		}

		if asYAML, err := wantYAML(cmd); err != nil || asYAML {
			if err != nil {
				return err
			}
			return printYAML(configs)
		}

		if len(configs) == 0 {
			fmt.Println("No configurations found")
			return nil
		}
		fmt.Printf("%-48s %-26s %s\n", "NAME", "LAST UPDATED", "LAYERS")
		for _, c := range configs {
			fmt.Printf("%-48s %-26s %d\n", c.Name, c.LastUpdated, len(c.Layers))
		}
		return nil
	},
}

var getImagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List images built for or booted by groups and nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, nodes, err := targetsFrom(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		mostRecent, _ := cmd.Flags().GetBool("most-recent")

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		matches, err := s.mgr.Images(cmd.Context(), manager.ImageQuery{
			Groups: groups, Nodes: nodes, Limit: limit, MostRecent: mostRecent,
		})
		if err != nil {
			return err
		}

		if asYAML, err := wantYAML(cmd); err != nil || asYAML {
			if err != nil {
				return err
			}
			return printYAML(matches)
		}

		if len(matches) == 0 {
			fmt.Println("No images found")
			return nil
		}
		fmt.Printf("%-38s %-32s %-26s %-40s %s\n", "ID", "NAME", "CREATED", "CONFIGURATION", "SOURCE")
		for _, m := range matches {
			fmt.Printf("%-38s %-32s %-26s %-40s %s\n",
				m.Image.ID, m.Image.Name, m.Image.Created, orDash(m.ConfigurationName), m.Source)
		}
		return nil
	},
}

var getNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Show inventory state of nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, nodes, err := targetsFrom(cmd)
		if err != nil {
			return err
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		states, err := s.mgr.NodeStates(cmd.Context(), groups, nodes)
		if states == nil && err != nil {
			return err
		}
		if asYAML, ferr := wantYAML(cmd); ferr != nil {
			return ferr
		} else if asYAML {
			if perr := printYAML(states); perr != nil {
				return perr
			}
			return err
		}

		fmt.Printf("%-18s %-8s %-10s %-8s %-12s %s\n", "ID", "NID", "STATE", "FLAG", "ROLE", "ENABLED")
		for _, n := range states {
			fmt.Printf("%-18s %-8d %-10s %-8s %-12s %t\n", n.ID, n.NID, n.State, n.Flag, orDash(n.Role), n.Enabled)
		}
		return err
	},
}

var getNodeImagesCmd = &cobra.Command{
	Use:   "node-images",
	Short: "Show the image each node is set to boot",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, nodes, err := targetsFrom(cmd)
		if err != nil {
			return err
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		images, err := s.mgr.NodeImages(cmd.Context(), groups, nodes)
		if images == nil && err != nil {
			return err
		}
		if asYAML, ferr := wantYAML(cmd); ferr != nil {
			return ferr
		} else if asYAML {
			if perr := printYAML(images); perr != nil {
				return perr
			}
			return err
		}

		fmt.Printf("%-18s %-38s %s\n", "NODE", "IMAGE", "CONFIGURATION")
		for _, ni := range images {
			fmt.Printf("%-18s %-38s %s\n", ni.Node, orDash(ni.ImageID), orDash(ni.Configuration))
		}
		return err
	},
}

var getConfigurationImageCmd = &cobra.Command{
	Use:   "configuration-image NAME",
	Short: "Show the boot image built from a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		tuple, err := s.mgr.ImageOfConfiguration(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if tuple == nil {
			return fmt.Errorf("no image found for configuration %s", args[0])
		}
		if asYAML, err := wantYAML(cmd); err != nil {
			return err
		} else if asYAML {
			return printYAML(tuple)
		}
		fmt.Printf("Image: %s\n", tuple.ArtifactID)
		fmt.Printf("  Configuration: %s\n", tuple.ConfigurationName)
		fmt.Printf("  Source: %s %s\n", tuple.Source, orDash(tuple.SourceName))
		return nil
	},
}

var getGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		groups, err := s.mgr.ListGroups(cmd.Context())
		if err != nil {
			return err
		}

		if asYAML, err := wantYAML(cmd); err != nil || asYAML {
			if err != nil {
				return err
			}
			return printYAML(groups)
		}

		fmt.Printf("%-24s %-8s %s\n", "LABEL", "MEMBERS", "TAGS")
		for _, g := range groups {
			fmt.Printf("%-24s %-8d %s\n", g.Label, len(g.Members), strings.Join(g.Tags, ","))
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{getConfigurationsCmd, getImagesCmd} {
		addTargetFlags(cmd)
		cmd.Flags().Int("limit", 0, "Keep only the N most recent entries")
		cmd.Flags().Bool("most-recent", false, "Show only the most recent entry")
	}
	addTargetFlags(getNodesCmd)
	addTargetFlags(getNodeImagesCmd)

	getCmd.AddCommand(getConfigurationsCmd)
	getCmd.AddCommand(getImagesCmd)
	getCmd.AddCommand(getNodesCmd)
	getCmd.AddCommand(getNodeImagesCmd)
	getCmd.AddCommand(getConfigurationImageCmd)
	getCmd.AddCommand(getGroupsCmd)

	rootCmd.AddCommand(getCmd)
}
