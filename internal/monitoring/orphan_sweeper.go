package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/repository"
	"github.com/suuu1021/file-upload/internal/services"
	"github.com/suuu1021/file-upload/internal/storage"
)

// ImageFiles is the part of the profile storage the sweeper works on.
type ImageFiles interface {
	List(ctx context.Context) ([]storage.StoredFile, error)
	Delete(ctx context.Context, publicPath string) error
}

// OrphanSweeper periodically removes stored images that no user references.
// Files younger than the grace period are left alone so an upload that has
// written its file but not yet committed the user row is never touched.
type OrphanSweeper struct {
	files    ImageFiles
	paths    func(ctx context.Context) ([]string, error)
	eventSvc services.EventServiceProvider
	grace    time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

// NewOrphanSweeper creates a new sweeper instance.
func NewOrphanSweeper(db *sql.DB, files ImageFiles, eventSvc services.EventServiceProvider, grace time.Duration) *OrphanSweeper {
	users := repository.NewSQLiteUserRepository(db)
	return &OrphanSweeper{
		files:    files,
		paths:    users.ProfileImagePaths,
		eventSvc: eventSvc,
		grace:    grace,
		now:      time.Now,
	}
}

// Start schedules the sweep using a standard cron expression or descriptor.
func (s *OrphanSweeper) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("invalid orphan sweep schedule %q: %w", schedule, err)
	}
	log.Info().Str("schedule", schedule).Dur("grace", s.grace).Msg("Starting orphan image sweeper...")
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *OrphanSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped orphan image sweeper.")
}

func (s *OrphanSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("Orphan sweep failed")
	}
}

// Sweep deletes unreferenced files older than the grace period and returns
// how many were removed. Individual delete failures are logged and skipped.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	referenced, err := s.paths(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(referenced))
	for _, p := range referenced {
		keep[storage.FilenameFromPath(p)] = true
	}

	files, err := s.files.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, f := range files {
		if keep[f.Name] || f.ModTime.After(cutoff) {
			continue
		}
		if err := s.files.Delete(ctx, f.PublicPath); err != nil {
			log.Warn().Err(err).Str("file", f.Name).Msg("Orphan sweep: could not remove file")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Orphan sweep removed unreferenced profile images")
		if s.eventSvc != nil {
			msg := fmt.Sprintf("Removed %d unreferenced profile image(s).", removed)
			if err := s.eventSvc.CreateEvent(ctx, services.EventOrphanSweep, models.EventLevelInfo, msg, nil); err != nil {
				log.Warn().Err(err).Msg("Orphan sweep: failed to record event")
			}
		}
	}
	return removed, nil
}
