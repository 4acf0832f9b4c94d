// Package handlers exposes the auth HTTP API: registration, login,
// refresh-token rotation, logout, and the current-user profile.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/services/auth/internal/config"
	"github.com/example/virexbooks/services/auth/internal/domain"
	"github.com/example/virexbooks/services/auth/internal/store"
	"github.com/example/virexbooks/services/auth/internal/tokens"
)

const maxBodyBytes = 1 << 20

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)
)

type UserStore interface {
	CreateUser(ctx context.Context, p store.CreateUserParams) (domain.User, error)
	FindUserByLogin(ctx context.Context, login string) (store.UserRow, error)
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
	CredentialsByID(ctx context.Context, userID string) (store.UserRow, error)
	UpdateProfile(ctx context.Context, userID string, p store.UpdateProfileParams) (domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetUserRoleByID(ctx context.Context, userID uuid.UUID, role string) error
}

type SessionStore interface {
	CreateRefreshSession(ctx context.Context, p store.CreateRefreshSessionParams) error
	GetRefreshSessionByHash(ctx context.Context, tokenHash string) (store.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID uuid.UUID, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error
	ReplaceRefreshSession(ctx context.Context, oldID, newID uuid.UUID, now time.Time) error
}

type Service struct {
	Users     UserStore
	Sessions  SessionStore
	Tokens    tokens.Service
	Cfg       config.AuthConfig
	Analytics *analytics.Publisher
	Log       *zap.Logger

	now func() time.Time
}

func New(users UserStore, sessions SessionStore, tok tokens.Service, cfg config.AuthConfig, ap *analytics.Publisher, log *zap.Logger) *Service {
	return &Service{
		Users:     users,
		Sessions:  sessions,
		Tokens:    tok,
		Cfg:       cfg,
		Analytics: ap,
		Log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r registerRequest) validate() (code, msg string) {
	if !emailRe.MatchString(strings.TrimSpace(r.Email)) {
		return "INVALID_EMAIL", "a valid email is required"
	}
	if !usernameRe.MatchString(r.Username) {
		return "INVALID_USERNAME", "username must be 3-32 characters of letters, digits or underscore"
	}
	if len(r.Password) < 8 {
		return "WEAK_PASSWORD", "password must be at least 8 characters"
	}
	return "", ""
}

type tokenResponse struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
}

// Register handles POST /v1/auth/register.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if code, msg := req.validate(); code != "" {
		api.BadRequest(w, code, msg, rid, nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		api.Internal(w, rid)
		return
	}

	user, err := s.Users.CreateUser(r.Context(), store.CreateUserParams{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     req.Username,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			api.Conflict(w, "USER_ALREADY_EXISTS", "email or username already taken", rid, nil)
			return
		}
		api.Internal(w, rid)
		return
	}

	if s.Cfg.BootstrapAdminUsername != "" && user.Username == s.Cfg.BootstrapAdminUsername {
		if id, perr := uuid.Parse(user.ID); perr == nil {
			if err := s.Users.SetUserRoleByID(r.Context(), id, "admin"); err == nil {
				user.Role = "admin"
			}
		}
	}

	resp, err := s.issueTokens(r, user)
	if err != nil {
		api.Internal(w, rid)
		return
	}
	s.Analytics.Publish(analytics.SubjectAuthRegistered, "auth.registered", user.ID, map[string]any{
		"username": user.Username,
	})
	api.WriteJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login handles POST /v1/auth/login. The login field accepts either
// email or username.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		api.BadRequest(w, "MISSING_CREDENTIALS", "login and password are required", rid, nil)
		return
	}

	row, err := s.Users.FindUserByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Unauthorized(w, "AUTH_INVALID_CREDENTIALS", "invalid login or password", rid)
			return
		}
		api.Internal(w, rid)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password)) != nil {
		api.Unauthorized(w, "AUTH_INVALID_CREDENTIALS", "invalid login or password", rid)
		return
	}

	resp, err := s.issueTokens(r, row.User)
	if err != nil {
		api.Internal(w, rid)
		return
	}
	s.Analytics.Publish(analytics.SubjectAuthLoggedIn, "auth.logged_in", row.User.ID, nil)
	api.WriteJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /v1/auth/refresh. Each refresh token is single
// use: the presented session is revoked and replaced by a new one.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		api.BadRequest(w, "MISSING_REFRESH_TOKEN", "refresh_token is required", rid, nil)
		return
	}

	now := s.now()
	sess, err := s.Sessions.GetRefreshSessionByHash(r.Context(), sha256Hex(req.RefreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Unauthorized(w, "AUTH_INVALID_REFRESH_TOKEN", "refresh token is not valid", rid)
			return
		}
		api.Internal(w, rid)
		return
	}
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) {
		api.Unauthorized(w, "AUTH_INVALID_REFRESH_TOKEN", "refresh token is not valid", rid)
		return
	}

	user, err := s.Users.GetUserByID(r.Context(), sess.UserID.String())
	if err != nil {
		api.Unauthorized(w, "AUTH_INVALID_REFRESH_TOKEN", "refresh token is not valid", rid)
		return
	}

	access, exp, err := s.Tokens.NewAccessToken(user.ID, user.Role, now)
	if err != nil {
		api.Internal(w, rid)
		return
	}
	rawRefresh, refreshHash, err := tokens.NewRefreshToken()
	if err != nil {
		api.Internal(w, rid)
		return
	}

	newID := uuid.New()
	if err := s.Sessions.ReplaceRefreshSession(r.Context(), sess.ID, newID, now); err != nil {
		api.Internal(w, rid)
		return
	}
	if err := s.Sessions.CreateRefreshSession(r.Context(), store.CreateRefreshSessionParams{
		SessionID: newID,
		UserID:    sess.UserID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.Cfg.RefreshTokenTTL),
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
		Now:       now,
	}); err != nil {
		api.Internal(w, rid)
		return
	}

	api.WriteJSON(w, http.StatusOK, tokenResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	})
}

// Logout handles POST /v1/auth/logout. Revocation is best effort so
// a token that is already gone still yields 204.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if strings.TrimSpace(req.RefreshToken) != "" {
		sess, err := s.Sessions.GetRefreshSessionByHash(r.Context(), sha256Hex(req.RefreshToken))
		if err == nil {
			if err := s.Sessions.RevokeRefreshSession(r.Context(), sess.ID, s.now()); err != nil && s.Log != nil {
				s.Log.Warn("revoke refresh session", zap.Error(err))
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /v1/me.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
		return
	}
	user, err := s.Users.GetUserByID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "USER_NOT_FOUND", "user not found", rid)
			return
		}
		api.Internal(w, rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatar_url"`
}

// UpdateProfile handles PUT /v1/me.
func (s *Service) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if len(req.DisplayName) > 100 {
		api.BadRequest(w, "DISPLAY_NAME_TOO_LONG", "display_name must be at most 100 characters", rid, nil)
		return
	}
	if len(req.Bio) > 2000 {
		api.BadRequest(w, "BIO_TOO_LONG", "bio must be at most 2000 characters", rid, nil)
		return
	}

	user, err := s.Users.UpdateProfile(r.Context(), uid, store.UpdateProfileParams{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "USER_NOT_FOUND", "user not found", rid)
			return
		}
		api.Internal(w, rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles PUT /v1/me/password. Every refresh session is
// revoked afterwards, so other devices must log in again.
func (s *Service) ChangePassword(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return
	}
	if len(req.NewPassword) < 8 {
		api.BadRequest(w, "WEAK_PASSWORD", "password must be at least 8 characters", rid, nil)
		return
	}

	row, err := s.Users.CredentialsByID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "USER_NOT_FOUND", "user not found", rid)
			return
		}
		api.Internal(w, rid)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.CurrentPassword)) != nil {
		api.Unauthorized(w, "AUTH_INVALID_CREDENTIALS", "current password is incorrect", rid)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		api.Internal(w, rid)
		return
	}
	if err := s.Users.UpdatePassword(r.Context(), uid, string(hash)); err != nil {
		api.Internal(w, rid)
		return
	}

	if userID, perr := uuid.Parse(uid); perr == nil {
		if err := s.Sessions.RevokeAllForUser(r.Context(), userID, s.now()); err != nil && s.Log != nil {
			s.Log.Warn("revoke sessions after password change", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) issueTokens(r *http.Request, user domain.User) (tokenResponse, error) {
	now := s.now()

	access, exp, err := s.Tokens.NewAccessToken(user.ID, user.Role, now)
	if err != nil {
		return tokenResponse{}, err
	}
	rawRefresh, refreshHash, err := tokens.NewRefreshToken()
	if err != nil {
		return tokenResponse{}, err
	}

	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return tokenResponse{}, err
	}
	if err := s.Sessions.CreateRefreshSession(r.Context(), store.CreateRefreshSessionParams{
		SessionID: uuid.New(),
		UserID:    userID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.Cfg.RefreshTokenTTL),
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
		Now:       now,
	}); err != nil {
		return tokenResponse{}, err
	}

	return tokenResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
