package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suuu1021/file-upload/internal/database"
	"github.com/suuu1021/file-upload/internal/models"
)

// EventRepository stores account events.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	RecentForUser(ctx context.Context, userID string, limit int) ([]models.Event, error)
}

type SQLiteEventRepository struct {
	db database.DBTX
}

func NewSQLiteEventRepository(db database.DBTX) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

// Create assigns an ID and timestamp when missing and inserts the event.
func (r *SQLiteEventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, event.UserID, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecentForUser returns the newest events for a user, newest first.
func (r *SQLiteEventRepository) RecentForUser(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, type, level, message, user_id, created_at FROM events WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.UserID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
