package main

import (
	"fmt"

	"github.com/cuemby/mantle/pkg/health"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that every cluster service answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		results := s.mgr.Health(cmd.Context())
		fmt.Printf("%-8s %-10s %-10s %s\n", "SERVICE", "STATUS", "LATENCY", "MESSAGE")
		for _, r := range results {
			status := "healthy"
			if !r.Healthy {
				status = "unhealthy"
			}
			fmt.Printf("%-8s %-10s %-10s %s\n", r.Service, status, r.Duration.Round(1e6), r.Message)
		}

		summary := health.Summarize(results)
		if summary.Unhealthy > 0 {
			return fmt.Errorf("%d of %d services unhealthy", summary.Unhealthy, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
