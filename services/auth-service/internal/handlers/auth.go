package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"github.com/asif-mahmud/medisched/libs/auth"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/audit"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/sessions"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/storage"
)

// UserStore is the account persistence surface the handler needs.
type UserStore interface {
	Create(ctx context.Context, user storage.User) error
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

// SessionStore tracks issued refresh tokens.
type SessionStore interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
}

// AuditLog records auth events. May be nil when auditing is disabled.
type AuditLog interface {
	Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error
	ListRecent(ctx context.Context, limit int) ([]audit.AuditEvent, error)
}

type AuthHandler struct {
	signer     TokenSigner
	users      UserStore
	audit      AuditLog
	sessions   SessionStore
	refreshTTL time.Duration
	accessTTL  time.Duration
}

func NewAuthHandler(signer TokenSigner, users UserStore, auditLog AuditLog, sessionStore SessionStore, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		signer:     signer,
		users:      users,
		audit:      auditLog,
		sessions:   sessionStore,
		refreshTTL: refreshTTL,
		accessTTL:  time.Hour,
	}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/me", h.handleMe)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /.well-known/jwks.json", h.handleJWKS)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.handleRotate)
	mux.HandleFunc("GET /api/v1/auth/audit", h.handleAudit)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
}

type meResponse struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	req.Role = strings.TrimSpace(req.Role)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "name, email and password required", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = auth.RolePatient
	}
	if !auth.ValidRole(req.Role) {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(r.Context(), "user.registered", user.ID, map[string]any{"role": user.Role})
	}

	h.writeTokens(w, r, user, http.StatusCreated)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(r.Context(), "user.login", user.ID, nil)
	}

	h.writeTokens(w, r, user, http.StatusOK)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verifyRequest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meResponse{
		UserID: claims.Sub,
		Name:   claims.Name,
		Role:   claims.Role,
	})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readRefreshToken(w, r)
	if !ok {
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(raw))
	if err != nil {
		if sessions.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt != nil || record.ExpiresAt.Before(time.Now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	// One-shot rotation: the presented token is dead either way.
	if err := h.sessions.Revoke(r.Context(), record.ID); err != nil {
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}
	h.writeTokens(w, r, user, http.StatusOK)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readRefreshToken(w, r)
	if !ok {
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(raw))
	if err != nil {
		if sessions.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt == nil {
		if err := h.sessions.Revoke(r.Context(), record.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	jwks := h.signer.JWKS()
	if len(jwks) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": jwks})
}

// handleRotate switches the active signing key. Admin only.
func (h *AuthHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verifyAdmin(w, r)
	if !ok {
		return
	}
	if !h.signer.CanRotate() {
		http.Error(w, "rotation not enabled", http.StatusBadRequest)
		return
	}

	var req struct {
		ActiveKid string `json:"activeKid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ActiveKid == "" {
		http.Error(w, "activeKid is required", http.StatusBadRequest)
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		http.Error(w, "unknown activeKid", http.StatusBadRequest)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(r.Context(), "jwt.rotate", claims.Sub, map[string]any{
			"active_kid": req.ActiveKid,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAudit lists recent auth events. Admin only.
func (h *AuthHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.verifyAdmin(w, r); !ok {
		return
	}
	if h.audit == nil {
		http.Error(w, "audit not available", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.AuditEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (h *AuthHandler) readRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refreshToken required", http.StatusBadRequest)
		return "", false
	}
	return req.RefreshToken, true
}

func (h *AuthHandler) verifyRequest(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) verifyAdmin(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := h.verifyRequest(w, r)
	if !ok {
		return nil, false
	}
	if claims.Role != auth.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, user storage.User, status int) {
	now := time.Now()
	accessToken, err := h.signer.Sign(auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		Iat:  now.Unix(),
		Exp:  now.Add(h.accessTTL).Unix(),
	})
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.issueRefreshToken(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	})
}

func (h *AuthHandler) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(buf)
	if _, err := h.sessions.Create(ctx, userID, raw, time.Now().Add(h.refreshTTL)); err != nil {
		return "", err
	}
	return raw, nil
}
