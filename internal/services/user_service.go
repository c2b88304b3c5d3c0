package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/apperrors"
	"github.com/suuu1021/file-upload/internal/database"
	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/repository"
	"github.com/suuu1021/file-upload/internal/requests"
	"golang.org/x/crypto/bcrypt"
)

// ImageStorage is the file storage the user service needs for profile images.
type ImageStorage interface {
	Store(ctx context.Context, content io.Reader, originalFilename string) (string, error)
	Delete(ctx context.Context, publicPath string) error
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, req requests.JoinRequest) (*models.User, error)
	Login(ctx context.Context, req requests.LoginRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, req requests.UpdateRequest) (*models.User, error)
	UploadProfileImage(ctx context.Context, id string, req requests.ProfileImageRequest) (*ProfileImageResult, error)
	DeleteProfileImage(ctx context.Context, id string) (*ProfileImageResult, error)
}

// ProfileImageResult is returned by image operations. Warning is set when the
// change was saved but the previous file could not be removed from disk.
type ProfileImageResult struct {
	User    *models.User
	Warning string
}

const cleanupWarning = "profile image saved, but the previous image file could not be removed"

// UserService provides business logic for user accounts and profile images.
type UserService struct {
	db       *sql.DB
	storage  ImageStorage
	events   EventServiceProvider
	users    func(database.DBTX) repository.UserRepository
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService creates a new UserService. events may be nil.
func NewUserService(db *sql.DB, storage ImageStorage, events EventServiceProvider) *UserService {
	return &UserService{
		db:      db,
		storage: storage,
		events:  events,
		users: func(db database.DBTX) repository.UserRepository {
			return repository.NewSQLiteUserRepository(db)
		},
		hashCost: bcrypt.DefaultCost,
	}
}

// Register creates a new account after checking the username is free.
func (s *UserService) Register(ctx context.Context, req requests.JoinRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		repo := s.users(tx)
		if _, err := repo.FindByUsername(ctx, req.Username); err == nil {
			return apperrors.Conflict("username already exists")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		created, err := repo.Insert(ctx, newUserFromJoin(req, hash))
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict("username already exists")
			}
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, EventUserRegister, models.EventLevelInfo, "Account created", user.ID)
	return user, nil
}

// Login returns the user matching the credentials. The error never reveals
// which of username or password was wrong.
func (s *UserService) Login(ctx context.Context, req requests.LoginRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users(s.db).FindByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// Burn the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalidCredentials()
	}
	return user, nil
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.loadUser(ctx, s.users(s.db), id)
}

// UpdateProfile replaces the password and email of a user.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req requests.UpdateRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		repo := s.users(tx)
		u, err := s.loadUser(ctx, repo, id)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.Email = req.Email
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, EventUserUpdate, models.EventLevelInfo, "Profile updated", user.ID)
	return user, nil
}

// UploadProfileImage stores a new image and points the user at it. The file
// is written before the transaction opens so the write lock is only held for
// the row update. The previous file is removed after commit, so a failure
// part-way never leaves the user without an image.
func (s *UserService) UploadProfileImage(ctx context.Context, id string, req requests.ProfileImageRequest) (*ProfileImageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.loadUser(ctx, s.users(s.db), id); err != nil {
		return nil, err
	}

	newPath, err := s.storage.Store(ctx, req.Content, req.Filename)
	if err != nil {
		return nil, apperrors.Storage("failed to upload profile image", err)
	}

	var (
		user    *models.User
		oldPath string
	)
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		repo := s.users(tx)
		u, err := s.loadUser(ctx, repo, id)
		if err != nil {
			return err
		}
		oldPath = u.ImagePath()
		u.ProfileImagePath = &newPath
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		// Stored but never committed: nothing references the file.
		s.removeQuietly(ctx, id, newPath)
		return nil, err
	}

	s.recordEvent(ctx, EventProfileImageUpload, models.EventLevelInfo, "Profile image uploaded: "+newPath, user.ID)

	result := &ProfileImageResult{User: user}
	if oldPath != "" && oldPath != newPath {
		result.Warning = s.cleanup(ctx, user.ID, oldPath)
	}
	return result, nil
}

// DeleteProfileImage clears the user's image reference, then removes the
// file. A user without an image is returned unchanged.
func (s *UserService) DeleteProfileImage(ctx context.Context, id string) (*ProfileImageResult, error) {
	var (
		user *models.User
		path string
	)
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		repo := s.users(tx)
		u, err := s.loadUser(ctx, repo, id)
		if err != nil {
			return err
		}
		user = u
		if !u.HasProfileImage() {
			return nil
		}
		path = u.ImagePath()
		u.ProfileImagePath = nil
		return repo.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	result := &ProfileImageResult{User: user}
	if path != "" {
		s.recordEvent(ctx, EventProfileImageDelete, models.EventLevelInfo, "Profile image removed", user.ID)
		result.Warning = s.cleanup(ctx, user.ID, path)
	}
	return result, nil
}

// loadUser fetches a user, logging a warning when it does not exist.
func (s *UserService) loadUser(ctx context.Context, repo repository.UserRepository, id string) (*models.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn().Str("user_id", id).Msg("User lookup failed")
			return nil, apperrors.NotFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

// cleanup removes a file that is no longer referenced. A failure is logged,
// recorded as an event and returned as a warning message for the caller.
func (s *UserService) cleanup(ctx context.Context, userID, path string) string {
	ctx = context.WithoutCancel(ctx)
	if err := s.storage.Delete(ctx, path); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("path", path).Msg("Failed to remove previous profile image")
		s.recordEvent(ctx, EventProfileImageCleanup, models.EventLevelWarn,
			fmt.Sprintf("Could not remove %s: %v", path, err), userID)
		return cleanupWarning
	}
	return ""
}

// removeQuietly deletes a file that was stored but never committed. A
// failure leaves an orphan for the sweeper and is recorded as an error event.
func (s *UserService) removeQuietly(ctx context.Context, userID, path string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.storage.Delete(ctx, path); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("path", path).Msg("Failed to remove uncommitted profile image")
		s.recordEvent(ctx, EventProfileImageCleanup, models.EventLevelError,
			fmt.Sprintf("Could not remove uncommitted %s: %v", path, err), userID)
	}
}

func (s *UserService) recordEvent(ctx context.Context, eventType, level, message, userID string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(ctx, eventType, level, message, &userID); err != nil {
		log.Error().Err(err).Str("type", eventType).Str("user_id", userID).Msg("Failed to record event")
	}
}

func (s *UserService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperrors.Validation("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *UserService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.hashCost)
	})
	return s.dummyHash
}

func invalidCredentials() error {
	return apperrors.InvalidCredentials("invalid username or password")
}
