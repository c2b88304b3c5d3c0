// Package repository is the persistence boundary for users and events.
// Repositories are bound to a database.DBTX so the same code runs against
// the pool or inside a transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suuu1021/file-upload/internal/database"
	"github.com/suuu1021/file-upload/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// UserRepository stores user records. Changes to a fetched user are only
// persisted by an explicit Update.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	ProfileImagePaths(ctx context.Context) ([]string, error)
}

type SQLiteUserRepository struct {
	db database.DBTX
}

func NewSQLiteUserRepository(db database.DBTX) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, username, password_hash, email, profile_image_path, created_at, updated_at"

func (r *SQLiteUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (r *SQLiteUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// Insert assigns the ID and timestamps and stores the user.
func (r *SQLiteUserRepository) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.Email, nullString(user.ProfileImagePath), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Update saves the mutable columns of user.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, email = ?, profile_image_path = ?, updated_at = ? WHERE id = ?",
		user.PasswordHash, user.Email, nullString(user.ProfileImagePath), user.UpdatedAt, user.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProfileImagePaths returns every non-empty image path referenced by a user.
func (r *SQLiteUserRepository) ProfileImagePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT profile_image_path FROM users WHERE profile_image_path IS NOT NULL AND profile_image_path != ''")
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u     models.User
		image sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if image.Valid && image.String != "" {
		u.ProfileImagePath = &image.String
	}
	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
