// Package scheduler runs a background robfig/cron job that periodically
// fsyncs a mounted volume, independent of the FUSE fsync/flush callbacks.
// Grounded on the teacher's scheduler/cron.go (cron.New + AddFunc, a
// package-level mutex guarding restart) adapted from one global backup job
// to one durability job per mounted volume.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nas-ai/sqlitefs/internal/volume"
)

// Syncer is the subset of *volume.Session the scheduler depends on.
type Syncer interface {
	Fsync(ctx context.Context) error
}

var _ Syncer = (*volume.Session)(nil)

// Durability runs Fsync on a schedule for one mounted volume.
type Durability struct {
	mu      sync.Mutex
	runner  *cron.Cron
	session Syncer
	logger  *logrus.Logger
	spec    string
}

// New builds a Durability scheduler for session, ticking at spec (a cron
// expression, e.g. "@every 30s").
func New(session Syncer, spec string, logger *logrus.Logger) *Durability {
	return &Durability{session: session, logger: logger, spec: spec}
}

// Start begins the cron job. Calling Start while already running restarts
// it with the current spec.
func (d *Durability) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.runner != nil {
		ctx := d.runner.Stop()
		<-ctx.Done()
	}

	d.runner = cron.New()
	if _, err := d.runner.AddFunc(d.spec, d.runFsync); err != nil {
		return fmt.Errorf("scheduler: register durability job: %w", err)
	}
	d.runner.Start()
	d.logger.WithField("schedule", d.spec).Info("durability scheduler started")
	return nil
}

// Stop halts the cron job, if running, and waits for any in-flight run.
func (d *Durability) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runner == nil {
		return
	}
	ctx := d.runner.Stop()
	<-ctx.Done()
	d.runner = nil
}

func (d *Durability) runFsync() {
	if err := d.session.Fsync(context.Background()); err != nil {
		d.logger.WithError(err).Error("durability scheduler: fsync failed")
		return
	}
	d.logger.Debug("durability scheduler: fsync completed")
}
