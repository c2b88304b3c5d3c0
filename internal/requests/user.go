// Package requests holds the inbound field sets for user operations and
// their validation rules. Validation is pure: no I/O and no store lookups.
// Each Validate stops at the first violated rule.
package requests

import (
	"io"
	"strings"

	"github.com/suuu1021/file-upload/internal/apperrors"
)

// MaxProfileImageSize is the largest accepted profile image, in bytes.
const MaxProfileImageSize = 20 * 1024 * 1024

// JoinRequest is the registration payload.
type JoinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r JoinRequest) Validate() error {
	if isBlank(r.Username) {
		return apperrors.Validation("username is required")
	}
	if isBlank(r.Password) {
		return apperrors.Validation("password is required")
	}
	if !strings.Contains(r.Email, "@") {
		return apperrors.Validation("email format is invalid")
	}
	return nil
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if isBlank(r.Username) {
		return apperrors.Validation("username is required")
	}
	if isBlank(r.Password) {
		return apperrors.Validation("password is required")
	}
	return nil
}

// UpdateRequest carries the editable profile fields. Username is immutable.
type UpdateRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r UpdateRequest) Validate() error {
	if isBlank(r.Password) {
		return apperrors.Validation("password is required")
	}
	if len(r.Password) < 4 {
		return apperrors.Validation("password must be at least 4 characters")
	}
	if !strings.Contains(r.Email, "@") {
		return apperrors.Validation("email format is invalid")
	}
	return nil
}

// ProfileImageRequest describes a selected image file.
type ProfileImageRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (r ProfileImageRequest) Validate() error {
	if r.Content == nil || r.Size <= 0 {
		return apperrors.Validation("please select a profile image")
	}
	if r.Size > MaxProfileImageSize {
		return apperrors.Validation("file size must be 20MB or less")
	}
	if r.ContentType == "" || !strings.HasPrefix(r.ContentType, "image/") {
		return apperrors.Validation("only image files can be uploaded")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
