package services

import (
	"context"
	"database/sql"

	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/repository"
)

const (
	EventUserRegister        = "user.register"
	EventUserUpdate          = "user.update"
	EventProfileImageUpload  = "user.profile_image.upload"
	EventProfileImageDelete  = "user.profile_image.delete"
	EventProfileImageCleanup = "user.profile_image.cleanup_failed"
	EventOrphanSweep         = "system.orphan_sweep"
	EventDiskAlert           = "system.alert.disk"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error)
}

// EventPublisher pushes freshly recorded events to live subscribers.
type EventPublisher interface {
	PublishEvent(event models.Event)
}

// EventService records account events and fans them out to subscribers.
type EventService struct {
	db        *sql.DB
	publisher EventPublisher
}

// NewEventService creates a new EventService. publisher may be nil.
func NewEventService(db *sql.DB, publisher EventPublisher) *EventService {
	return &EventService{db: db, publisher: publisher}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error {
	event := models.Event{
		Type:    eventType,
		Level:   level,
		Message: message,
		UserID:  userID,
	}
	if err := repository.NewSQLiteEventRepository(s.db).Create(ctx, &event); err != nil {
		return err
	}
	if s.publisher != nil && event.UserID != nil {
		s.publisher.PublishEvent(event)
	}
	return nil
}

// GetRecentEvents retrieves the most recent events for a user.
func (s *EventService) GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return repository.NewSQLiteEventRepository(s.db).RecentForUser(ctx, userID, limit)
}
