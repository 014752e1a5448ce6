package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current artifact, last job, and next scheduled run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := context.Background()

			current, err := c.ArchiveUseCase().Current(ctx)
			if err != nil {
				return err
			}
			if current == nil {
				cmd.Println("Current:   none (no merge has succeeded yet)")
			} else {
				cmd.Printf("Current:   %s (%d channels, %d programs, %d bytes)\n",
					current.Filename, current.Channels, current.Programs, current.SizeBytes)
				cmd.Printf("Created:   %s (%d days left)\n",
					current.CreatedAt.Format("2006-01-02 15:04 MST"), current.DaysLeft)
			}

			latest, err := c.JobRepository().FindLatest(ctx)
			if err != nil {
				return err
			}
			if latest == nil {
				cmd.Println("Last job:  none")
			} else {
				cmd.Printf("Last job:  %s %s at %s\n",
					latest.ID(), latest.Status(), latest.StartedAt().Format("2006-01-02 15:04 MST"))
			}

			if next := c.Scheduler().NextRun(ctx, time.Now()); !next.IsZero() {
				cmd.Printf("Next run:  %s\n", next.Format("2006-01-02 15:04 MST"))
			} else {
				cmd.Println("Next run:  not scheduled")
			}

			if verify {
				report, err := c.ArchiveUseCase().Verify(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Index:     %d records, %d files on disk\n", report.IndexCount, report.DiskCount)
				if report.Consistent() {
					cmd.Println("Verify:    OK")
				} else {
					for _, name := range report.MissingOnDisk {
						cmd.Printf("Verify:    %s is indexed but missing on disk\n", name)
					}
					for _, name := range report.MissingIndex {
						cmd.Printf("Verify:    %s is on disk but not indexed\n", name)
					}
					return fmt.Errorf("metadata index and disk disagree")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "cross-check the metadata index against files on disk")
	return cmd
}
