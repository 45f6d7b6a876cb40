package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// rollbackWindow is how long the supervisor watches agent health after
// applying a self-update before declaring it healthy.
const rollbackWindow = 5 * time.Minute

// UpdateSource describes where to fetch the next binary and its expected
// checksum.
type UpdateSource interface {
	// Check returns the available version, its download URL, and its
	// expected sha256 checksum (hex-encoded). ok is false when the
	// current binary is already current.
	Check(ctx context.Context) (version, url, sha256Hex string, ok bool, err error)
}

// Updater drives the daily self-update lifecycle: checksum-verified
// download, idle-window gating, a .prev backup of the replaced binary,
// and a bounded health-watch rollback window. It never retries a
// self-update in the same process after a rollback, since a rolled-back
// update already demonstrated the new binary is unhealthy.
type Updater struct {
	BinaryPath   string
	Source       UpdateSource
	IsIdle       func() bool
	HealthOK     func(ctx context.Context) bool
	logger       *slog.Logger
	rolledBackAt *time.Time
}

// NewUpdater builds an Updater. isIdle reports whether it's currently
// safe to replace the running binary (no active sessions); healthOK
// reports whether the agent is healthy right now, used during the
// post-update watch window.
func NewUpdater(binaryPath string, source UpdateSource, isIdle func() bool, healthOK func(ctx context.Context) bool) *Updater {
	return &Updater{
		BinaryPath: binaryPath,
		Source:     source,
		IsIdle:     isIdle,
		HealthOK:   healthOK,
		logger:     slog.Default().With("component", "supervisor.update"),
	}
}

// MaybeUpdate runs one check-and-apply pass, intended to be called once
// per day. It is a no-op if a prior update in this process already
// rolled back.
func (u *Updater) MaybeUpdate(ctx context.Context) error {
	if u.rolledBackAt != nil {
		u.logger.Info("skipping self-update: prior update this run was rolled back")
		return nil
	}

	version, url, wantSHA, ok, err := u.Source.Check(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: update check: %w", err)
	}
	if !ok {
		return nil
	}

	if u.IsIdle != nil {
		for !u.IsIdle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(30 * time.Second):
			}
		}
	}

	u.logger.Info("applying self-update", "version", version)
	if err := u.apply(ctx, url, wantSHA); err != nil {
		return fmt.Errorf("supervisor: apply update: %w", err)
	}

	return u.watchAndRollback(ctx)
}

func (u *Updater) apply(ctx context.Context, url, wantSHA string) error {
	tmp := u.BinaryPath + ".download"
	if err := downloadChecked(ctx, url, tmp, wantSHA); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod new binary: %w", err)
	}

	prev := u.BinaryPath + ".prev"
	if _, err := os.Stat(u.BinaryPath); err == nil {
		if err := os.Rename(u.BinaryPath, prev); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("back up current binary: %w", err)
		}
	}
	if err := os.Rename(tmp, u.BinaryPath); err != nil {
		return fmt.Errorf("install new binary: %w", err)
	}
	return nil
}

// watchAndRollback polls HealthOK across rollbackWindow; any unhealthy
// read restores the .prev binary and marks this Updater as rolled back
// for the remainder of the process.
func (u *Updater) watchAndRollback(ctx context.Context) error {
	if u.HealthOK == nil {
		return nil
	}
	deadline := time.Now().Add(rollbackWindow)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !u.HealthOK(ctx) {
				return u.rollback()
			}
		}
	}
	return nil
}

func (u *Updater) rollback() error {
	prev := u.BinaryPath + ".prev"
	if _, err := os.Stat(prev); err != nil {
		return fmt.Errorf("supervisor: update unhealthy but no .prev binary to restore: %w", err)
	}
	if err := os.Rename(prev, u.BinaryPath); err != nil {
		return fmt.Errorf("supervisor: restore previous binary: %w", err)
	}
	now := time.Now()
	u.rolledBackAt = &now
	u.logger.Warn("self-update rolled back after health check failure")
	return fmt.Errorf("supervisor: update rolled back, agent unhealthy within watch window")
}

func downloadChecked(ctx context.Context, url, destPath, wantSHAHex string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("write download: %w", err)
	}
	out.Close()

	gotSHA := hex.EncodeToString(hasher.Sum(nil))
	if gotSHA != wantSHAHex {
		os.Remove(destPath)
		return fmt.Errorf("checksum mismatch: got %s, want %s", gotSHA, wantSHAHex)
	}
	return nil
}
