package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// manifestUpdateSource reads a locally-synced manifest file describing the
// next available build of one component (the agent binary or the
// supervisor binary): {"agent": {"version","url","sha256"},
// "supervisor": {...}}. There is no hosted release channel in this
// composition, so the manifest is expected to be dropped onto disk by
// whatever external process builds and signs releases; this source only
// decides whether its component's entry names a version newer than the
// one currently running.
type manifestUpdateSource struct {
	manifestPath   string
	component      string
	currentVersion string
}

type componentManifest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

type updateManifest struct {
	Agent      componentManifest `json:"agent"`
	Supervisor componentManifest `json:"supervisor"`
}

func newManifestUpdateSource(manifestPath, component, currentVersion string) *manifestUpdateSource {
	return &manifestUpdateSource{manifestPath: manifestPath, component: component, currentVersion: currentVersion}
}

func (s *manifestUpdateSource) Check(ctx context.Context) (version, url, sha256Hex string, ok bool, err error) {
	_ = ctx
	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", "", false, nil
		}
		return "", "", "", false, fmt.Errorf("update source: read manifest: %w", err)
	}
	var m updateManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", "", "", false, fmt.Errorf("update source: parse manifest: %w", err)
	}
	entry := m.Agent
	if s.component == "supervisor" {
		entry = m.Supervisor
	}
	if entry.Version == "" || entry.Version == s.currentVersion {
		return "", "", "", false, nil
	}
	return entry.Version, entry.URL, entry.SHA256, true, nil
}

// binaryUpdaterAdapter satisfies supervisor.BinaryUpdater by delegating
// to the Updater's full checksum-verified download and rollback-watch
// lifecycle, used both for the daily check and as a last-resort
// remediation.
type binaryUpdaterAdapter struct {
	updater interface {
		MaybeUpdate(ctx context.Context) error
	}
}

func (a binaryUpdaterAdapter) UpdateBinary(ctx context.Context) error {
	return a.updater.MaybeUpdate(ctx)
}
