package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wintermute-run/wintermute/internal/heartbeat"
)

func buildStatusCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the most recent health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), *rootDir)
		},
	}
}

func runStatus(ctx context.Context, root string) error {
	_ = ctx
	l := newLayout(root)
	snap, err := heartbeat.ReadSnapshot(l.healthPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("wintermute is not running (no health.json)")
			return exitCode(1)
		}
		return fmt.Errorf("status: %w", err)
	}

	age := time.Since(snap.Ts)
	fmt.Printf("executor:        %s (container alive: %v)\n", snap.ExecutorMode, snap.ContainerAlive)
	fmt.Printf("uptime:          %s\n", time.Duration(snap.UptimeSecs)*time.Second)
	fmt.Printf("last snapshot:   %s ago\n", age.Round(time.Second))
	fmt.Printf("active sessions: %d\n", snap.ActiveSessions)
	fmt.Printf("memory entries:  %d\n", snap.MemoryStoreSize)
	fmt.Printf("tools:           %d core, %d dynamic\n", snap.CoreToolCount, snap.DynamicToolCount)
	fmt.Printf("budget today:    %d / %d tokens\n", snap.BudgetToday.DailySpent, snap.BudgetToday.DailyLimit)
	if snap.LastError != "" {
		fmt.Printf("last error:      %s\n", snap.LastError)
	}
	if age > 3*heartbeat.DefaultSnapshotInterval {
		fmt.Println("warning: snapshot is stale, the agent process may be stuck or stopped")
		return exitCode(1)
	}
	return nil
}
