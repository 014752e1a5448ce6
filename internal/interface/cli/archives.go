package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jesmann/epgmerge/internal/domain/repository"
)

func newArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "Inspect and manage archived guide files",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newArchivesListCmd())
	cmd.AddCommand(newArchivesDownloadCmd())
	cmd.AddCommand(newArchivesDeleteCmd())
	cmd.AddCommand(newArchivesCleanupCmd())
	return cmd
}

var sortKeys = map[string]repository.SortKey{
	"name":          repository.SortByName,
	"date":          repository.SortByDate,
	"size":          repository.SortBySize,
	"channels":      repository.SortByChannels,
	"programs":      repository.SortByPrograms,
	"days_included": repository.SortByDaysIncluded,
	"days_left":     repository.SortByDaysLeft,
}

func newArchivesListCmd() *cobra.Command {
	var (
		sortBy string
		desc   bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed guide files",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := sortKeys[sortBy]
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortBy)
			}
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			entries, err := c.ArchiveUseCase().List(context.Background(), repository.ArchiveQuery{
				Sort:       key,
				Descending: desc,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("No archives recorded")
				return nil
			}
			for _, e := range entries {
				marker := " "
				if e.IsCurrent {
					marker = "*"
				}
				cmd.Printf("%s %-40s  %s  %4d ch  %6d pr  %2dd left  %d bytes\n",
					marker, e.Filename, e.CreatedAt.Format("2006-01-02 15:04"),
					e.Channels, e.Programs, e.DaysLeft, e.SizeBytes)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "date", "sort key: name, date, size, channels, programs, days_included, days_left")
	cmd.Flags().BoolVar(&desc, "desc", true, "sort descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to show, 0 for all")
	return cmd
}

func newArchivesDownloadCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "download <filename>",
		Short: "Copy a current or archived guide file to a local path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			r, info, err := c.ArchiveUseCase().Open(context.Background(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			dest := outPath
			if dest == "" {
				dest = info.Name
			}
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, r)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %s (%d bytes)\n", dest, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "destination path (defaults to the archive filename)")
	return cmd
}

func newArchivesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete an archived guide file and its index record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.ArchiveUseCase().Delete(context.Background(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newArchivesCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired archives now, regardless of the cleanup setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Sweeper().Sweep(context.Background(), time.Now().UTC(), true)
			if err != nil {
				return err
			}
			cmd.Printf("Examined %d expired archive(s), deleted %d\n", result.Examined, result.Deleted)
			return nil
		},
	}
}
