package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/suuu1021/file-upload/internal/apperrors"
	"github.com/suuu1021/file-upload/internal/auth"
	"github.com/suuu1021/file-upload/internal/models"
	"github.com/suuu1021/file-upload/internal/requests"
	"github.com/suuu1021/file-upload/internal/services"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Register(ctx context.Context, req requests.JoinRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) Login(ctx context.Context, req requests.LoginRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, id string, req requests.UpdateRequest) (*models.User, error) {
	args := m.Called(ctx, id, req)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) UploadProfileImage(ctx context.Context, id string, req requests.ProfileImageRequest) (*services.ProfileImageResult, error) {
	args := m.Called(ctx, id, req)
	r, _ := args.Get(0).(*services.ProfileImageResult)
	return r, args.Error(1)
}

func (m *mockUserService) DeleteProfileImage(ctx context.Context, id string) (*services.ProfileImageResult, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*services.ProfileImageResult)
	return r, args.Error(1)
}

func strPtr(s string) *string { return &s }

func withUser(r *http.Request, id string) *http.Request {
	ctx := context.WithValue(r.Context(), auth.UserClaimsKey, &auth.Claims{UserID: id, Username: "ssar"})
	return r.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "value"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newHandler(svc services.UserServiceProvider) *UserHandler {
	return NewUserHandler(svc, auth.NewTokenManager("secret", time.Hour), false)
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperrors.Validation("username is required"), http.StatusBadRequest, "username is required"},
		{"conflict", apperrors.Conflict("username already exists"), http.StatusBadRequest, "username already exists"},
		{"credentials", apperrors.InvalidCredentials("invalid username or password"), http.StatusBadRequest, "invalid username or password"},
		{"storage", apperrors.Storage("failed to upload profile image", errors.New("disk full")), http.StatusBadRequest, "failed to upload profile image"},
		{"not found", apperrors.NotFound("user not found"), http.StatusNotFound, "user not found"},
		{"unclassified", errors.New("sql: connection refused"), http.StatusInternalServerError, "internal server error"},
		{"wrapped not found", fmt.Errorf("load: %w", apperrors.NotFound("user not found")), http.StatusNotFound, "user not found"},
		{"unknown kind", &apperrors.Error{Message: "raw driver text"}, http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
		})
	}
}

func TestUserHandler_Join(t *testing.T) {
	svc := new(mockUserService)
	req := requests.JoinRequest{Username: "ssar", Password: "1234", Email: "ssar@nate.com"}
	svc.On("Register", mock.Anything, req).Return(&models.User{ID: "u1", Username: "ssar", Email: "ssar@nate.com", PasswordHash: "hash"}, nil)

	body, _ := json.Marshal(req)
	rec := httptest.NewRecorder()
	newHandler(svc).Join(rec, httptest.NewRequest(http.MethodPost, "/join", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "u1", got["id"])
	assert.NotContains(t, rec.Body.String(), "hash")
	svc.AssertExpectations(t)
}

func TestUserHandler_JoinBadBody(t *testing.T) {
	svc := new(mockUserService)
	rec := httptest.NewRecorder()
	newHandler(svc).Join(rec, httptest.NewRequest(http.MethodPost, "/join", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestUserHandler_LoginSetsCookie(t *testing.T) {
	svc := new(mockUserService)
	req := requests.LoginRequest{Username: "ssar", Password: "1234"}
	svc.On("Login", mock.Anything, req).Return(&models.User{ID: "u1", Username: "ssar"}, nil)

	body, _ := json.Marshal(req)
	rec := httptest.NewRecorder()
	h := newHandler(svc)
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	claims, err := h.tokens.ValidateJWT(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, cookies[0].Value, decodeBody(t, rec)["token"])
}

func TestUserHandler_LoginFailure(t *testing.T) {
	svc := new(mockUserService)
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, apperrors.InvalidCredentials("invalid username or password"))

	rec := httptest.NewRecorder()
	newHandler(svc).Login(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"x","password":"y"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestUserHandler_Logout(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(new(mockUserService)).Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestUserHandler_GetMe(t *testing.T) {
	svc := new(mockUserService)
	svc.On("GetUserByID", mock.Anything, "u1").Return(&models.User{ID: "u1", Username: "ssar", ProfileImagePath: strPtr("/uploads/profiles/a.png")}, nil)
	svc.On("GetUserByID", mock.Anything, "gone").Return(nil, apperrors.NotFound("user not found"))
	h := newHandler(svc)

	rec := httptest.NewRecorder()
	h.GetMe(rec, withUser(httptest.NewRequest(http.MethodGet, "/user/me", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/uploads/profiles/a.png", decodeBody(t, rec)["profileImagePath"])

	rec = httptest.NewRecorder()
	h.GetMe(rec, withUser(httptest.NewRequest(http.MethodGet, "/user/me", nil), "gone"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.GetMe(rec, httptest.NewRequest(http.MethodGet, "/user/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserHandler_Update(t *testing.T) {
	svc := new(mockUserService)
	req := requests.UpdateRequest{Password: "abcd", Email: "new@nate.com"}
	svc.On("UpdateProfile", mock.Anything, "u1", req).Return(&models.User{ID: "u1", Email: "new@nate.com"}, nil)

	body, _ := json.Marshal(req)
	rec := httptest.NewRecorder()
	newHandler(svc).Update(rec, withUser(httptest.NewRequest(http.MethodPut, "/user/update", bytes.NewReader(body)), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new@nate.com", decodeBody(t, rec)["email"])
}

func TestUserHandler_UploadProfileImage(t *testing.T) {
	svc := new(mockUserService)
	content := []byte("\xff\xd8\xff fake jpeg")
	svc.On("UploadProfileImage", mock.Anything, "u1", mock.MatchedBy(func(req requests.ProfileImageRequest) bool {
		if req.Filename != "me.jpg" || req.ContentType != "image/jpeg" || req.Size != int64(len(content)) {
			return false
		}
		got, err := io.ReadAll(req.Content)
		return err == nil && bytes.Equal(got, content)
	})).Return(&services.ProfileImageResult{
		User:    &models.User{ID: "u1", ProfileImagePath: strPtr("/uploads/profiles/x.jpg")},
		Warning: "profile image saved, but the previous image file could not be removed",
	}, nil)

	body, ct := multipartBody(t, ProfileImageField, "me.jpg", "image/jpeg", content)
	r := httptest.NewRequest(http.MethodPost, "/user/profile-image", body)
	r.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHandler(svc).UploadProfileImage(rec, withUser(r, "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "/uploads/profiles/x.jpg", got["user"].(map[string]interface{})["profileImagePath"])
	assert.Equal(t, "profile image saved, but the previous image file could not be removed", got["warning"])
}

func TestUserHandler_UploadWithoutFile(t *testing.T) {
	svc := new(mockUserService)
	svc.On("UploadProfileImage", mock.Anything, "u1", requests.ProfileImageRequest{}).
		Return(nil, apperrors.Validation("please select a profile image"))

	body, ct := multipartBody(t, "", "", "", nil)
	r := httptest.NewRequest(http.MethodPost, "/user/profile-image", body)
	r.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHandler(svc).UploadProfileImage(rec, withUser(r, "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "please select a profile image", decodeBody(t, rec)["error"])
	svc.AssertExpectations(t)
}

func TestUserHandler_UploadNotMultipart(t *testing.T) {
	svc := new(mockUserService)
	r := httptest.NewRequest(http.MethodPost, "/user/profile-image", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newHandler(svc).UploadProfileImage(rec, withUser(r, "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "UploadProfileImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserHandler_UploadTooLarge(t *testing.T) {
	svc := new(mockUserService)
	content := bytes.Repeat([]byte{0xAB}, requests.MaxProfileImageSize+multipartOverhead+1)

	body, ct := multipartBody(t, ProfileImageField, "big.jpg", "image/jpeg", content)
	r := httptest.NewRequest(http.MethodPost, "/user/profile-image", body)
	r.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newHandler(svc).UploadProfileImage(rec, withUser(r, "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file size must be 20MB or less", decodeBody(t, rec)["error"])
	svc.AssertNotCalled(t, "UploadProfileImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestUserHandler_DeleteProfileImage(t *testing.T) {
	svc := new(mockUserService)
	svc.On("DeleteProfileImage", mock.Anything, "u1").Return(&services.ProfileImageResult{User: &models.User{ID: "u1"}}, nil)

	rec := httptest.NewRecorder()
	newHandler(svc).DeleteProfileImage(rec, withUser(httptest.NewRequest(http.MethodDelete, "/user/profile-image", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Nil(t, got["user"].(map[string]interface{})["profileImagePath"])
	assert.NotContains(t, got, "warning")
}

type mockEventService struct {
	mock.Mock
}

func (m *mockEventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error {
	return m.Called(ctx, eventType, level, message, userID).Error(0)
}

func (m *mockEventService) GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	args := m.Called(ctx, userID, limit)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

func TestEventHandler_GetRecent(t *testing.T) {
	svc := new(mockEventService)
	svc.On("GetRecentEvents", mock.Anything, "u1", 20).Return([]models.Event{{ID: "e1"}}, nil)
	svc.On("GetRecentEvents", mock.Anything, "u1", 5).Return([]models.Event{}, nil)
	svc.On("GetRecentEvents", mock.Anything, "u1", maxEventLimit).Return([]models.Event{}, nil)
	h := NewEventHandler(svc)

	for _, q := range []string{"", "?limit=abc", "?limit=-1", "?limit=5", "?limit=1000"} {
		rec := httptest.NewRecorder()
		h.GetRecent(rec, withUser(httptest.NewRequest(http.MethodGet, "/user/events"+q, nil), "u1"))
		assert.Equal(t, http.StatusOK, rec.Code, q)
	}
	svc.AssertNumberOfCalls(t, "GetRecentEvents", 5)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeUsage struct {
	stat *disk.UsageStat
	err  error
}

func (u fakeUsage) Usage(context.Context) (*disk.UsageStat, error) { return u.stat, u.err }

func TestHealthHandler(t *testing.T) {
	stat := &disk.UsageStat{Path: "/data", Total: 100, Free: 40, UsedPercent: 60}

	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}, fakeUsage{stat: stat}).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "ok", got["status"])
	uploads := got["uploads"].(map[string]interface{})
	assert.Equal(t, 60.0, uploads["usedPercent"])
	assert.NotContains(t, uploads, "path")
	assert.NotContains(t, rec.Body.String(), "/data")

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("closed")}, fakeUsage{stat: stat}).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decodeBody(t, rec)["database"])

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{}, fakeUsage{err: errors.New("no such dir")}).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
