package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/manager"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Control node power",
}

func newPowerCmd(use, short string, op types.PowerOperation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(cmd, op)
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().Bool("wait", false, "Wait for the operation to complete")
	cmd.Flags().Bool("force", false, "Skip the graceful shutdown (off and reset only)")
	return cmd
}

var powerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node power state",
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

		status, err := s.mgr.PowerStatus(cmd.Context(), groups, nodes)
		if status == nil {
			return err
		}
		if asYAML, ferr := wantYAML(cmd); ferr != nil {
			return ferr
		} else if asYAML {
			if perr := printYAML(status); perr != nil {
				return perr
			}
			return err
		}

		fmt.Printf("%-10s %s\n", "STATE", "NODES")
		fmt.Printf("%-10s %s\n", "on", strings.Join(status.On, ","))
		fmt.Printf("%-10s %s\n", "off", strings.Join(status.Off, ","))
		if len(status.Undefined) > 0 {
			fmt.Printf("%-10s %s\n", "undefined", strings.Join(status.Undefined, ","))
		}
		return err
	},
}

func init() {
	powerCmd.AddCommand(newPowerCmd("on", "Power nodes on", types.PowerOn))
	powerCmd.AddCommand(newPowerCmd("off", "Power nodes off", types.PowerSoftOff))
	powerCmd.AddCommand(newPowerCmd("reset", "Restart nodes", types.PowerSoftRestart))

	addTargetFlags(powerStatusCmd)
	powerCmd.AddCommand(powerStatusCmd)

	rootCmd.AddCommand(powerCmd)
}

func forced(op types.PowerOperation) types.PowerOperation {
	switch op {
	case types.PowerSoftOff:
		return types.PowerForceOff
	case types.PowerSoftRestart:
		return types.PowerHardRestart
	}
	return op
}

func runPower(cmd *cobra.Command, op types.PowerOperation) error {
	groups, nodes, err := targetsFrom(cmd)
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetBool("wait")
	if force, _ := cmd.Flags().GetBool("force"); force {
		op = forced(op)
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
	report, err := s.mgr.Power(cmd.Context(), manager.PowerRequest{
		Groups:    groups,
		Nodes:     nodes,
		Operation: op,
		Wait:      wait,
	})
	stop()
	if report == nil {
		return err
	}

	for _, t := range report.Transitions {
		fmt.Printf("Transition %s: %s (%d nodes, %d succeeded, %d failed)\n",
			t.ID, t.Status, len(t.Location), t.TaskCounts.Succeeded, t.TaskCounts.Failed)
	}
	for _, r := range report.Legacy {
		if wait && !r.Converged {
			fmt.Printf("Not %s after %d attempts: %s\n", r.Desired, r.Attempts, strings.Join(r.Mismatched, ","))
		}
	}

	if failed := report.FailedNodes(); wait && len(failed) > 0 {
		fmt.Printf("✗ %d of %d nodes failed: %s\n", len(failed), len(report.Nodes), strings.Join(failed, ","))
		if err == nil {
			err = fmt.Errorf("power %s failed for %d nodes", op, len(failed))
		}
	} else if err == nil {
		fmt.Printf("✓ Power %s issued for %d nodes\n", op, len(report.Nodes))
	}
	return err
}
