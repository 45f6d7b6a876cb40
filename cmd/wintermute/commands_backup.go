package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wintermute-run/wintermute/internal/backup"
)

func buildBackupCmd(rootDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a timestamped archive of the runtime root",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := backup.Create(*rootDir, time.Now())
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.AddCommand(buildBackupListCmd(rootDir), buildBackupRestoreCmd(rootDir))
	return cmd
}

func buildBackupListCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored backups, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := backup.List(*rootDir)
			if err != nil {
				return fmt.Errorf("backup list: %w", err)
			}
			if len(infos) == 0 {
				fmt.Println("no backups found")
				return nil
			}
			for i, info := range infos {
				fmt.Printf("%d\t%s\t%s\n", i, info.CreatedAt.Format(time.RFC3339), info.Path)
			}
			return nil
		},
	}
}

func buildBackupRestoreCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <index>",
		Short: "Restore a previous backup by its list index (0 = most recent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("backup restore: index must be an integer: %w", err)
			}
			if err := backup.Restore(*rootDir, n); err != nil {
				return fmt.Errorf("backup restore: %w", err)
			}
			fmt.Println("restored")
			return nil
		},
	}
}
