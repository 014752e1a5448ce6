package cli

import (
	"github.com/spf13/cobra"

	"github.com/jesmann/epgmerge/internal/app/config"
	infraConfig "github.com/jesmann/epgmerge/internal/infra/config"
	"github.com/jesmann/epgmerge/internal/infrastructure/di"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

// NewRoot builds the command tree
func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epgmerge",
		Short: "Merge XMLTV program guides on a schedule",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			baseDir := infraConfig.ResolveHome()
			cfg, err := infraConfig.LoadSettings(baseDir)
			if err != nil {
				return err
			}
			globalConfig = cfg
			InitGlobalLogger(cfg.StderrLevel())
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newArchivesCmd())
	cmd.AddCommand(newSaveCmd())
	cmd.AddCommand(newVersionCmd(version))
	return cmd
}

// newContainer wires the application from the loaded configuration
func newContainer() (*di.Container, error) {
	log := GetLogger()
	return di.NewContainer(globalConfig, log.Info, log.Warn)
}
