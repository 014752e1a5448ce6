package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <file>",
		Short: "Promote a locally produced guide file to current",
		Long: "Stages the given file under the configured output name and promotes it " +
			"to the current slot, archiving any prior current file. The index record " +
			"carries no channel or programme counts for manually installed files.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := c.ArchiveUseCase().Install(context.Background(), f)
			if err != nil {
				return err
			}
			cmd.Printf("Installed %s (%d bytes)\n", result.Filename, result.SizeBytes)
			if result.ArchivedAs != "" {
				cmd.Printf("Previous version archived as %s\n", result.ArchivedAs)
			}
			return nil
		},
	}
}
