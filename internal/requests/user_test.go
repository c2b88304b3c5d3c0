package requests

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suuu1021/file-upload/internal/apperrors"
)

func TestJoinRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     JoinRequest
		wantMsg string
	}{
		{"ok", JoinRequest{"ssar", "1234", "ssar@nate.com"}, ""},
		{"blank username", JoinRequest{"  ", "1234", "ssar@nate.com"}, "username is required"},
		{"blank password", JoinRequest{"ssar", "\t", "ssar@nate.com"}, "password is required"},
		{"email without at", JoinRequest{"ssar", "1234", "ssar.nate.com"}, "email format is invalid"},
		{"first rule wins", JoinRequest{"", "", ""}, "username is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	require.NoError(t, LoginRequest{"ssar", "1234"}.Validate())

	err := LoginRequest{"", "1234"}.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "username is required", err.Error())

	err = LoginRequest{"ssar", " "}.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "password is required", err.Error())
}

func TestUpdateRequest_Validate(t *testing.T) {
	require.NoError(t, UpdateRequest{"abcd", "a@b"}.Validate())

	err := UpdateRequest{"ab", "a@b"}.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "password must be at least 4 characters", err.Error())

	err = UpdateRequest{"", "a@b"}.Validate()
	assert.Equal(t, "password is required", err.Error())

	err = UpdateRequest{"abcd", "nope"}.Validate()
	assert.Equal(t, "email format is invalid", err.Error())
}

func TestProfileImageRequest_Validate(t *testing.T) {
	body := strings.NewReader("x")

	tests := []struct {
		name    string
		req     ProfileImageRequest
		wantMsg string
	}{
		{"ok", ProfileImageRequest{"photo.jpeg", "image/jpeg", 1024, body}, ""},
		{"exactly 20MiB", ProfileImageRequest{"a.png", "image/png", MaxProfileImageSize, body}, ""},
		{"no content", ProfileImageRequest{"a.png", "image/png", 10, nil}, "please select a profile image"},
		{"empty", ProfileImageRequest{"a.png", "image/png", 0, body}, "please select a profile image"},
		{"21MB", ProfileImageRequest{"big.png", "image/png", 21 * 1024 * 1024, body}, "file size must be 20MB or less"},
		{"no content type", ProfileImageRequest{"a.png", "", 10, body}, "only image files can be uploaded"},
		{"not an image", ProfileImageRequest{"a.pdf", "application/pdf", 10, body}, "only image files can be uploaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}
