package models

import "time"

// User represents a registered blog account.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // Never expose this to the client
	ProfileImagePath *string   `json:"profileImagePath"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasProfileImage reports whether the user currently references a stored image.
func (u *User) HasProfileImage() bool {
	return u.ProfileImagePath != nil && *u.ProfileImagePath != ""
}

// ImagePath returns the stored image path or "" when there is none.
func (u *User) ImagePath() string {
	if u.ProfileImagePath == nil {
		return ""
	}
	return *u.ProfileImagePath
}
