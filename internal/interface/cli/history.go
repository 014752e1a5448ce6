package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent merge jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			jobs, err := c.JobRepository().List(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				cmd.Println("No jobs recorded")
				return nil
			}
			for _, j := range jobs {
				cmd.Printf("%s  %-9s  %s", j.ID(), j.Status(), j.StartedAt().Format("2006-01-02 15:04:05"))
				if s := j.Summary(); s != nil {
					cmd.Printf("  %d channels, %d programs", s.Channels, s.Programs)
				}
				if f := j.Failure(); f != nil {
					cmd.Printf("  [%s] %s", f.Kind, f.Message)
				}
				cmd.Println()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}
