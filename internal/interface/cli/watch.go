package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Executor().ReconcileStartup(context.Background()); err != nil {
				return err
			}

			sched := c.Scheduler()
			sched.Start()
			defer sched.Stop()

			if next := sched.NextRun(context.Background(), time.Now()); !next.IsZero() {
				cmd.Printf("Scheduler running; next merge at %s\n", next.Format("2006-01-02 15:04 MST"))
			} else {
				cmd.Println("Scheduler running; no valid schedule configured")
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			<-sigCh

			if c.Executor().Cancel() {
				Warn("interrupt received, cancelling running job")
				// Give the executor a moment to record the cancellation
				deadline := time.After(10 * time.Second)
				for c.Executor().IsRunning() {
					select {
					case <-deadline:
						return nil
					case <-time.After(100 * time.Millisecond):
					}
				}
			}
			return nil
		},
	}
}
