package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/services"
)

const (
	highDiskThreshold = 90.0
	alertCooldown     = 15 * time.Minute
)

// UsageReporter reports disk usage of the upload volume.
type UsageReporter interface {
	Usage(ctx context.Context) (*disk.UsageStat, error)
}

// DiskWatcher periodically checks the upload volume and raises an alert
// event when it is nearly full.
type DiskWatcher struct {
	uploads   UsageReporter
	eventSvc  services.EventServiceProvider
	interval  time.Duration
	ticker    *time.Ticker
	done      chan struct{}
	lastAlert time.Time
}

// NewDiskWatcher creates a new DiskWatcher.
func NewDiskWatcher(uploads UsageReporter, eventSvc services.EventServiceProvider, interval time.Duration) *DiskWatcher {
	return &DiskWatcher{
		uploads:  uploads,
		eventSvc: eventSvc,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run starts the periodic checks.
func (w *DiskWatcher) Run() {
	log.Info().Dur("interval", w.interval).Msg("Starting upload volume watcher...")
	w.ticker = time.NewTicker(w.interval)
	defer w.ticker.Stop()

	// Run once immediately on start
	w.check(context.Background())

	for {
		select {
		case <-w.done:
			log.Info().Msg("Stopping upload volume watcher.")
			return
		case <-w.ticker.C:
			w.check(context.Background())
		}
	}
}

// Stop halts the periodic checks.
func (w *DiskWatcher) Stop() {
	close(w.done)
}

// check reports whether an alert was raised.
func (w *DiskWatcher) check(ctx context.Context) bool {
	usage, err := w.uploads.Usage(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("DiskWatcher: could not read upload volume usage")
		return false
	}
	log.Debug().Str("path", usage.Path).Float64("used_percent", usage.UsedPercent).Msg("DiskWatcher: upload volume usage")

	if usage.UsedPercent <= highDiskThreshold {
		return false
	}
	// If an alert was sent recently, do nothing.
	if !w.lastAlert.IsZero() && time.Since(w.lastAlert) < alertCooldown {
		return false
	}

	msg := fmt.Sprintf("Upload volume %s is %.1f%% full.", usage.Path, usage.UsedPercent)
	log.Warn().Str("path", usage.Path).Float64("used_percent", usage.UsedPercent).Msg("DiskWatcher: upload volume nearly full")
	if w.eventSvc != nil {
		if err := w.eventSvc.CreateEvent(ctx, services.EventDiskAlert, models.EventLevelWarn, msg, nil); err != nil {
			log.Error().Err(err).Msg("DiskWatcher: failed to record alert event")
		}
	}
	w.lastAlert = time.Now()
	return true
}
