package main

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var outputJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a send would be allowed right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			verdict := "not eligible"
			if report.Eligible {
				verdict = "eligible"
			}
			_, _ = fmt.Fprintf(out, "%s: %s\n", verdict, report.Reason)
			_, _ = fmt.Fprintf(out, "today: %d/%d  this hour: %d/%d\n",
				report.SentToday, report.MaxPerDay, report.SentThisHour, report.MaxPerHour)
			if report.LastActionAt != nil {
				_, _ = fmt.Fprintf(out, "last action: %s\n", report.LastActionAt.Format("2006-01-02 15:04:05 MST"))
			}
			if report.NextWindowStart != nil {
				_, _ = fmt.Fprintf(out, "next window: %s\n", report.NextWindowStart.Format("2006-01-02 15:04 MST"))
			}
			if len(report.ByCategory) > 0 {
				categories := make([]string, 0, len(report.ByCategory))
				for category := range report.ByCategory {
					categories = append(categories, category)
				}
				sort.Strings(categories)
				for _, category := range categories {
					_, _ = fmt.Fprintf(out, "contacts %s: %d\n", category, report.ByCategory[category])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print as JSON")
	return cmd
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear throughput counters and all contact progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), "This clears all counters and contact progress. Type yes to confirm: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					return fmt.Errorf("reset aborted")
				}
			}
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Reset(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "state cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
