package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jesmann/epgmerge/internal/domain/model/job"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one merge job now and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Executor().ReconcileStartup(context.Background()); err != nil {
				return err
			}

			// First interrupt cancels the job; the executor then finishes
			// with a cancelled record
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				Warn("interrupt received, cancelling job")
				c.Executor().Cancel()
			}()

			j, err := c.Executor().Execute(context.Background(), true)
			if err != nil {
				if errors.Is(err, job.ErrAlreadyRunning) {
					return fmt.Errorf("a merge job is already running")
				}
				return err
			}

			printJob(cmd, j)
			if j.Status() != job.StatusSuccess {
				return fmt.Errorf("job %s finished with status %s", j.ID(), j.Status())
			}
			return nil
		},
	}
}

func printJob(cmd *cobra.Command, j *job.Job) {
	cmd.Printf("Job:       %s\n", j.ID())
	cmd.Printf("Status:    %s\n", j.Status())
	cmd.Printf("Started:   %s\n", j.StartedAt().Format("2006-01-02 15:04:05 MST"))
	if j.IsTerminal() {
		cmd.Printf("Duration:  %.1fs\n", j.ExecutionSeconds())
	}
	if s := j.Summary(); s != nil {
		cmd.Printf("File:      %s (%d bytes)\n", s.Filename, s.SizeBytes)
		cmd.Printf("Channels:  %d\n", s.Channels)
		cmd.Printf("Programs:  %d\n", s.Programs)
		cmd.Printf("Days:      %d\n", s.DaysIncluded)
	}
	if f := j.Failure(); f != nil {
		cmd.Printf("Error:     [%s] %s\n", f.Kind, f.Message)
	}
}
