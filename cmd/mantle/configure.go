package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client settings and node desired configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a client config file",
	Long: `Write a client config file with default settings.

Examples:
  mantle config init --endpoint https://api.example.com/apis --token-file ~/.config/mantle/token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		tokenFile, _ := cmd.Flags().GetString("token-file")
		caCert, _ := cmd.Flags().GetString("ca-cert")
		proxy, _ := cmd.Flags().GetString("proxy")
		backend, _ := cmd.Flags().GetString("power-backend")

		cfg := config.Default()
		cfg.Endpoint = endpoint
		cfg.TokenFile = tokenFile
		cfg.CACert = caCert
		cfg.Proxy = proxy
		cfg.Power.Backend = backend
		if err := cfg.Validate(); err != nil {
			return err
		}

		path := configPath(cmd)
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective client config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printYAML(cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the desired configuration of nodes",
	Long: `Assign a configuration to every target node. The automation service
then applies it and retries on failure up to each node's retry policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, nodes, err := targetsFrom(cmd)
		if err != nil {
			return err
		}
		configuration, _ := cmd.Flags().GetString("configuration")

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.checkAccess(cmd.Context(), groups); err != nil {
			return err
		}

		patched, err := s.mgr.SetDesiredConfiguration(cmd.Context(), groups, nodes, configuration)
		fmt.Printf("Desired configuration %s set on %d nodes\n", configuration, len(patched))
		return err
	},
}

var configStopRetriesCmd = &cobra.Command{
	Use:   "stop-retries",
	Short: "Stop automatic configuration retries on nodes",
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

		if err := s.checkAccess(cmd.Context(), groups); err != nil {
			return err
		}

		patched, err := s.mgr.StopRetries(cmd.Context(), groups, nodes)
		if len(patched) == 0 && err == nil {
			fmt.Println("No node was still retrying")
			return nil
		}
		ids := make([]string, 0, len(patched))
		for _, c := range patched {
			ids = append(ids, c.ID)
		}
		fmt.Printf("Retries stopped on %d nodes: %s\n", len(ids), strings.Join(ids, ","))
		return err
	},
}

func init() {
	configInitCmd.Flags().String("endpoint", "", "API gateway base URL (required)")
	configInitCmd.Flags().String("token-file", "", "File holding the bearer access token")
	configInitCmd.Flags().String("ca-cert", "", "PEM bundle to trust for the gateway")
	configInitCmd.Flags().String("proxy", "", "Proxy URL (http, https or socks5)")
	configInitCmd.Flags().String("power-backend", config.BackendPCS, "Power backend (pcs, capmc)")
	_ = configInitCmd.MarkFlagRequired("endpoint")

	addTargetFlags(configSetCmd)
	configSetCmd.Flags().String("configuration", "", "Configuration name (required)")
	_ = configSetCmd.MarkFlagRequired("configuration")

	addTargetFlags(configStopRetriesCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configStopRetriesCmd)

	rootCmd.AddCommand(configCmd)
}
