package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldreach/outreach/cadence"
	"github.com/fieldreach/outreach/internal/statepaths"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the cadence policy",
	}
	cmd.AddCommand(newPolicyCheckCmd())
	return cmd
}

func newPolicyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the policy file and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := statepaths.PolicyPath()
			if path == "" {
				return fmt.Errorf("no cadence policy configured (set --policy or cadence.policy_file)")
			}
			policy, err := cadence.LoadPolicyFile(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s: ok\n", path)
			_, _ = fmt.Fprintf(out, "timezone: %s\n", policy.Timezone)
			windows := make([]string, 0, len(policy.Windows))
			for _, w := range policy.Windows {
				windows = append(windows, fmt.Sprintf("%s-%s", w.Start, w.End))
			}
			_, _ = fmt.Fprintf(out, "windows: %s\n", strings.Join(windows, ", "))
			_, _ = fmt.Fprintf(out, "limits: %d/day, %d/hour\n", policy.MaxPerDay, policy.MaxPerHour)
			for name, seq := range policy.Sequences {
				state := "enabled"
				if !seq.Enabled {
					state = "disabled"
				}
				_, _ = fmt.Fprintf(out, "sequence %q: %d steps, %s\n", name, len(seq.Steps), state)
			}
			return nil
		},
	}
	return cmd
}
