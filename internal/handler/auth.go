package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/auth"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/store"
	"github.com/formsmith/formsmith/internal/token"
)

type AuthHandler struct {
	users         *store.UserStore
	tokens        *token.Service
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(users *store.UserStore, tokens *token.Service, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:         users,
		tokens:        tokens,
		secureCookies: secureCookies,
		logger:        logger.With("component", "auth"),
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
		return
	}
	if len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}

	if existing, err := h.users.GetByEmail(req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	} else if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.users.Create(req.Email, req.Name, string(hash), model.RoleUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.startSession(w, u); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	u, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Same response for unknown email and wrong password.
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, h.logger, apperr.New(apperr.CodeUnauthenticated))
		return
	}

	if err := h.startSession(w, u); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.CodeUnauthenticated))
		return
	}
	u, err := h.users.GetByID(p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if u == nil {
		writeError(w, h.logger, apperr.New(apperr.CodeUnauthenticated))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, u *model.User) error {
	raw, err := h.tokens.Issue(u.ID, u.Role, nil)
	if err != nil {
		return err
	}
	auth.SetCookie(w, raw, h.secureCookies)
	return nil
}
