package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nas-ai/sqlitefs/internal/config"
	"github.com/nas-ai/sqlitefs/internal/diagnostics"
	"github.com/nas-ai/sqlitefs/internal/volume"
)

func newConfigCommand(logger *logrus.Logger) *cobra.Command {
	var mount, volumeName, password string
	var debug bool
	var quotaMB float64

	cmd := &cobra.Command{
		Use:   "config NAME",
		Short: "Reconfigure an existing volume's mount point, name, or quota",
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
			existing, ok := cfg.Volumes[name]
			if !ok {
				return fmt.Errorf("no filesystem named %q", name)
			}
			if volumeName == "" {
				volumeName = existing.Name
			}

			dbPath, err := dbPathFor(name)
			if err != nil {
				return err
			}
			quotaBytes := int64(quotaMB * 1e6)
			if err := diagnostics.CheckCapacity(filepath.Dir(dbPath), quotaBytes, logger); err != nil {
				logger.WithError(err).Warn("capacity preflight failed, continuing")
			}

			session, err := volume.Open(context.Background(), dbPath, existing.Name, []byte(password), quotaBytes, logger)
			if err != nil {
				fmt.Println("ACCESS DENIED")
				return err
			}
			defer session.Close(context.Background())

			if err := session.Resize(quotaBytes); err != nil {
				fmt.Println("FAILED")
				return err
			}

			mountAbs := existing.Mount
			if mount != "" {
				mountAbs, err = filepath.Abs(mount)
				if err != nil {
					return err
				}
			}
			cfg.PutVolume(config.Volume{Name: volumeName, Mount: mountAbs, Debug: debug, Size: quotaBytes})
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}

	cmd.Flags().StringVarP(&mount, "mount", "m", "", "new mount point path")
	cmd.Flags().StringVarP(&volumeName, "volume-name", "v", "", "new volume name")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().Float64VarP(&quotaMB, "quota", "q", 1e3, "new volume size quota in MB")
	cmd.Flags().StringVar(&password, "password", "", "volume password")

	return cmd
}
