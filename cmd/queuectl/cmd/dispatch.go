package cmd

import (
	"sort"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch pass and print the report",
	Long: `Run one dispatch pass: free stale leases, requeue items stuck in processing,
then publish every due item. The server's cron runs the same pass.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Dispatch.RunPass(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

var releaseStaleCmd = &cobra.Command{
	Use:   "release-stale",
	Short: "Free dispatch leases older than LEASE_STALE_AFTER",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Leases.ReleaseStale(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		cmd.Printf("Released %d stale lease(s)\n", n)
		return nil
	},
}

func printReport(cmd *cobra.Command, r *service.PassReport) {
	cmd.Printf("Pass finished in %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	cmd.Printf("  stale leases released: %d\n", r.StaleReleased)
	cmd.Printf("  processing requeued:   %d\n", r.ProcessingRequeued)
	cmd.Printf("  due:                   %d\n", r.Due)

	outcomes := make([]string, 0, len(r.Outcomes))
	for o := range r.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		cmd.Printf("  %-22s %d\n", o+":", r.Outcomes[service.Outcome(o)])
	}

	ids := make([]int64, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cmd.Printf("  content %d: %s\n", id, r.Errors[id])
	}
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(releaseStaleCmd)
}
