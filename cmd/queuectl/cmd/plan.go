package cmd

import (
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
	"github.com/spf13/cobra"
)

var (
	planProfile  int64
	planPlatform string
	planCount    int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the next free slot instants of a profile",
	Long: `List the instants the next uploads for a profile/platform pair would take,
earliest first, without reserving anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		candidates, err := a.Assign.Preview(cmd.Context(), planProfile, planPlatform, planCount)
		if err != nil {
			return err
		}
		printPlan(cmd, candidates, a.Config.Location())
		return nil
	},
}

func printPlan(cmd *cobra.Command, candidates []scheduling.Candidate, loc *time.Location) {
	if len(candidates) == 0 {
		cmd.Println("No free slot within the horizon")
		return
	}
	for i, c := range candidates {
		cmd.Printf("%2d. %s %02d:%02d  slot %d  (%s)\n", i+1, c.Date, c.Slot.Hour, c.Slot.Minute,
			c.Slot.ID, c.ScheduledAt.In(loc).Format(time.RFC3339))
	}
}

func init() {
	planCmd.Flags().Int64Var(&planProfile, "profile", 0, "profile id")
	planCmd.Flags().StringVar(&planPlatform, "platform", "", "target platform")
	planCmd.Flags().IntVar(&planCount, "count", 5, "number of instants to show")
	planCmd.MarkFlagRequired("profile")
	planCmd.MarkFlagRequired("platform")

	rootCmd.AddCommand(planCmd)
}
