package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage group membership",
}

var groupAddMembersCmd = &cobra.Command{
	Use:   "add-members LABEL",
	Short: "Add nodes to a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, _ := cmd.Flags().GetStringSlice("node")
		if len(nodes) == 0 {
			return fmt.Errorf("at least one --node is required")
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.checkAccess(cmd.Context(), args); err != nil {
			return err
		}

		added, err := s.mgr.AddGroupMembers(cmd.Context(), args[0], nodes)
		if len(added) > 0 {
			fmt.Printf("✓ Added to %s: %s\n", args[0], strings.Join(added, ","))
		} else if err == nil {
			fmt.Printf("Every node is already a member of %s\n", args[0])
		}
		return err
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect what the credential may operate on",
}

var authGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the groups the credential is authorized for",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		groups, err := s.mgr.AuthorizedGroups(cmd.Context())
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Println(g)
		}
		return nil
	},
}

var authDeniedCmd = &cobra.Command{
	Use:   "denied",
	Short: "Show which of the given groups the credential may not operate on",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, _ := cmd.Flags().GetStringSlice("group")
		if len(groups) == 0 {
			return fmt.Errorf("at least one --group is required")
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		denied, err := s.mgr.CheckAccess(cmd.Context(), groups)
		if err != nil {
			return err
		}
		if len(denied) == 0 {
			fmt.Println("✓ Authorized for every group")
			return nil
		}
		for _, g := range denied {
			fmt.Println(g)
		}
		return nil
	},
}

func init() {
	groupAddMembersCmd.Flags().StringSliceP("node", "n", nil, "Node xname to add (repeatable or comma separated)")
	groupCmd.AddCommand(groupAddMembersCmd)

	authDeniedCmd.Flags().StringSliceP("group", "g", nil, "Group to check (repeatable or comma separated)")
	authCmd.AddCommand(authGroupsCmd)
	authCmd.AddCommand(authDeniedCmd)

	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(authCmd)
}
