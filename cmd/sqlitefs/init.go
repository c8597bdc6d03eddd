package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nas-ai/sqlitefs/internal/config"
	"github.com/nas-ai/sqlitefs/internal/diagnostics"
	"github.com/nas-ai/sqlitefs/internal/volume"
)

func dbPathFor(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sqlitefs", fmt.Sprintf("%s.db", name)), nil
}

func newInitCommand(logger *logrus.Logger) *cobra.Command {
	var mount, volumeName, password string
	var debug bool
	var quotaMB float64

	cmd := &cobra.Command{
		Use:   "init NAME",
		Short: "Create a new encrypted volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			if volumeName == "" {
				volumeName = name
			}

			mountAbs, err := filepath.Abs(mount)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(mountAbs, 0o755); err != nil {
				return fmt.Errorf("create mount point: %w", err)
			}

			dbPath, err := dbPathFor(name)
			if err != nil {
				return err
			}
			if _, err := os.Stat(dbPath); err == nil {
				fmt.Println("FAILED")
				return fmt.Errorf("%s already exists", name)
			}

			quotaBytes := int64(quotaMB * 1e6)
			if err := diagnostics.CheckCapacity(filepath.Dir(dbPath), quotaBytes, logger); err != nil {
				logger.WithError(err).Warn("capacity preflight failed, continuing")
			}

			if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
				return err
			}
			session, err := volume.Open(context.Background(), dbPath, volumeName, []byte(password), quotaBytes, logger)
			if err != nil {
				fmt.Println("FAILED")
				return err
			}
			if err := session.Close(context.Background()); err != nil {
				return err
			}

			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg.PutVolume(config.Volume{Name: volumeName, Mount: mountAbs, Debug: debug, Size: quotaBytes})
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println("OK")
			return nil
		},
	}

	cmd.Flags().StringVarP(&mount, "mount", "m", "", "mount point path")
	cmd.Flags().StringVarP(&volumeName, "volume-name", "v", "", "volume name (defaults to NAME)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().Float64VarP(&quotaMB, "quota", "q", 1e3, "volume size quota in MB")
	cmd.Flags().StringVar(&password, "password", "", "volume password")
	cmd.MarkFlagRequired("mount")

	return cmd
}
