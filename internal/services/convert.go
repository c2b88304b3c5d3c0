package services

import (
	"time"

	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/requests"
)

// UserResponse is the client-facing view of a user.
type UserResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	ProfileImagePath *string   `json:"profileImagePath"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ToUserResponse converts a stored user into its client-facing view.
func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		ProfileImagePath: u.ProfileImagePath,
		CreatedAt:        u.CreatedAt,
	}
}

func newUserFromJoin(req requests.JoinRequest, passwordHash string) *models.User {
	return &models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Email:        req.Email,
	}
}
