package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/manager"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run configuration sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a configuration session",
	Long: `Start a configuration session against running nodes, or build an image
with --image-group.

Examples:
  # Configure the nodes of a group and wait for the result
  mantle session create --configuration compute-cfg --group clusterA --wait

  # Customize an image for the Compute group
  mantle session create --configuration compute-cfg --image-group Compute=<image id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		configuration, _ := cmd.Flags().GetString("configuration")
		limit, _ := cmd.Flags().GetString("configuration-limit")
		groups, _ := cmd.Flags().GetStringSlice("group")
		nodes, _ := cmd.Flags().GetStringSlice("node")
		imageGroups, _ := cmd.Flags().GetStringSlice("image-group")
		wait, _ := cmd.Flags().GetBool("wait")

		image, err := parseImageGroups(imageGroups)
		if err != nil {
			return err
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.checkAccess(cmd.Context(), groups); err != nil {
			return err
		}

		stop := s.followProgress()
		session, err := s.mgr.CreateSession(cmd.Context(), manager.SessionRequest{
			Name:               name,
			ConfigurationName:  configuration,
			ConfigurationLimit: limit,
			Groups:             groups,
			Nodes:              nodes,
			Image:              image,
			Wait:               wait,
		})
		stop()
		if session != nil {
			printSession(session)
		}
		return err
	},
}

var sessionWaitCmd = &cobra.Command{
	Use:   "wait NAME",
	Short: "Wait for a configuration session to complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		stop := s.followProgress()
		session, err := s.mgr.WaitSession(cmd.Context(), args[0])
		stop()
		if session != nil {
			printSession(session)
		}
		return err
	},
}

func init() {
	sessionCreateCmd.Flags().String("name", "", "Session name (generated when empty)")
	sessionCreateCmd.Flags().String("configuration", "", "Configuration name (required)")
	sessionCreateCmd.Flags().String("configuration-limit", "", "Apply only the named layers")
	sessionCreateCmd.Flags().StringSlice("image-group", nil, "Build an image: GROUP=IMAGE_ID (repeatable)")
	sessionCreateCmd.Flags().Bool("wait", false, "Wait for the session to complete")
	addTargetFlags(sessionCreateCmd)
	_ = sessionCreateCmd.MarkFlagRequired("configuration")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionWaitCmd)
	rootCmd.AddCommand(sessionCmd)
}

func parseImageGroups(specs []string) ([]types.TargetGroup, error) {
	var out []types.TargetGroup
	for _, spec := range specs {
		group, image, ok := strings.Cut(spec, "=")
		if !ok || group == "" || image == "" {
			return nil, fmt.Errorf("invalid image group %q, expected GROUP=IMAGE_ID", spec)
		}
		out = append(out, types.TargetGroup{Name: group, Members: []string{image}})
	}
	return out, nil
}

func printSession(s *types.AutomationSession) {
	fmt.Printf("Session: %s\n", s.Name)
	fmt.Printf("  Configuration: %s\n", s.ConfigurationName)
	fmt.Printf("  Status: %s\n", orDash(string(s.Status.Status)))
	if s.Complete() {
		fmt.Printf("  Succeeded: %t\n", s.Succeeded())
	}
	for _, a := range s.Status.Artifacts {
		fmt.Printf("  Artifact: %s -> %s\n", a.ImageID, a.ResultID)
	}
}
