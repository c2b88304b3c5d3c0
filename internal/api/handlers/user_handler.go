package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suuu1021/file-upload/internal/apperrors"
	"github.com/suuu1021/file-upload/internal/auth"
	"github.com/suuu1021/file-upload/internal/requests"
	"github.com/suuu1021/file-upload/internal/services"
)

// ProfileImageField is the multipart field carrying the profile image.
const ProfileImageField = "profileImage"

// multipartOverhead is the body allowance above the image size for form framing.
const multipartOverhead = 1 << 20

// UserHandler handles HTTP requests for accounts and profile images.
type UserHandler struct {
	service      services.UserServiceProvider
	tokens       *auth.TokenManager
	secureCookie bool
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, tokens *auth.TokenManager, secureCookie bool) *UserHandler {
	return &UserHandler{service: service, tokens: tokens, secureCookie: secureCookie}
}

type imageResponse struct {
	User    services.UserResponse `json:"user"`
	Warning string                `json:"warning,omitempty"`
}

// Join handles new user registration.
func (h *UserHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req requests.JoinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("username", req.Username).Msg("Failed to register user")
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.ToUserResponse(user))
}

// Login authenticates the user and issues the session token cookie.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req requests.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Login(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("username", req.Username).Msg("Failed authentication attempt")
		writeError(w, r, err)
		return
	}

	token, err := h.tokens.GenerateJWT(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Expires:  time.Now().Add(h.tokens.TTL()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  services.ToUserResponse(user),
	})
}

// Logout clears the session token cookie.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetMe returns the logged-in user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ToUserResponse(user))
}

// Update changes the logged-in user's password and email.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req requests.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ToUserResponse(user))
}

// UploadProfileImage replaces the logged-in user's profile image with the
// file sent in the profileImage multipart field.
func (h *UserHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUserID(w, r)
	if !ok {
		return
	}

	const limit = requests.MaxProfileImageSize + multipartOverhead
	if r.ContentLength > limit {
		writeError(w, r, apperrors.Validation("file size must be 20MB or less"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperrors.Validation("file size must be 20MB or less"))
			return
		}
		writeError(w, r, apperrors.Validation("please select a profile image"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var req requests.ProfileImageRequest
	file, header, err := r.FormFile(ProfileImageField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, r, err)
		return
	default:
		defer file.Close()
		req = requests.ProfileImageRequest{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		}
	}

	result, err := h.service.UploadProfileImage(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{User: services.ToUserResponse(result.User), Warning: result.Warning})
}

// DeleteProfileImage removes the logged-in user's profile image.
func (h *UserHandler) DeleteProfileImage(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.DeleteProfileImage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{User: services.ToUserResponse(result.User), Warning: result.Warning})
}
