package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nas-ai/sqlitefs/internal/config"
	"github.com/nas-ai/sqlitefs/internal/diagnostics"
)

// newDiagCommand runs the capacity preflight standalone, against an
// already-configured volume's recorded quota, without opening the volume.
func newDiagCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag NAME",
		Short: "Run the capacity diagnostic for a configured volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			vol, ok := cfg.Volumes[name]
			if !ok {
				fmt.Println("FAILED")
				return fmt.Errorf("no filesystem named %q", name)
			}

			dbPath, err := dbPathFor(name)
			if err != nil {
				return err
			}
			if err := diagnostics.CheckCapacity(filepath.Dir(dbPath), vol.Size, logger); err != nil {
				fmt.Println("FAILED")
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	return cmd
}
