// Package cachestats implements an optional, cron-driven logger of
// Content-Addressed Store size and age (SPEC_FULL.md §1): ambient ops
// tooling only, cache pruning itself stays manual (spec §9 Open Questions).
package cachestats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

// Snapshot summarizes one namespace of the cache at a point in time.
type Snapshot struct {
	Namespace string
	Entries   int
	Bytes     int64
	OldestAge time.Duration
	NewestAge time.Duration
}

// Scan walks root and summarizes every regular file beneath it into a
// Snapshot labeled namespace ("sources" or "models").
func Scan(namespace, root string) (Snapshot, error) {
	snap := Snapshot{Namespace: namespace}
	now := time.Now()
	var oldest, newest time.Time

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		snap.Entries++
		snap.Bytes += info.Size()
		mod := info.ModTime()
		if oldest.IsZero() || mod.Before(oldest) {
			oldest = mod
		}
		if newest.IsZero() || mod.After(newest) {
			newest = mod
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	if !oldest.IsZero() {
		snap.OldestAge = now.Sub(oldest)
		snap.NewestAge = now.Sub(newest)
	}
	return snap, nil
}

// Reporter periodically logs Store size/age snapshots on a cron schedule.
type Reporter struct {
	sourcesDir string
	modelsDir  string
	log        *logging.Logger
	cron       *cron.Cron
}

// NewReporter builds a Reporter over the Store's two namespaces.
func NewReporter(sourcesDir, modelsDir string, log *logging.Logger) *Reporter {
	return &Reporter{
		sourcesDir: sourcesDir,
		modelsDir:  modelsDir,
		log:        log,
		cron:       cron.New(),
	}
}

// Start schedules periodic reporting at the given standard 5-field cron
// expression and begins running it in the background. Call Stop to end it.
func (r *Reporter) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.report)
	if err != nil {
		return fmt.Errorf("invalid cache-stats schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	return nil
}

// Stop ends the scheduled reporting, waiting for any in-flight run to
// finish.
func (r *Reporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reporter) report() {
	log := r.log.Phase("cachestats")
	for namespace, root := range map[string]string{"sources": r.sourcesDir, "models": r.modelsDir} {
		snap, err := Scan(namespace, root)
		if err != nil {
			log.WithError(err).WithField("namespace", namespace).Warn("cache scan failed")
			continue
		}
		log.WithField("namespace", snap.Namespace).
			WithField("entries", snap.Entries).
			WithField("bytes", snap.Bytes).
			WithField("oldest_age_s", int(snap.OldestAge.Seconds())).
			WithField("newest_age_s", int(snap.NewestAge.Seconds())).
			Info("cache snapshot")
	}
}
