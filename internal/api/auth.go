package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/audit"
	"github.com/nerrad567/gray-logic-panel/internal/backend"
)

// sessionResponse describes the panel's session. The token itself is never returned.
type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) currentSession() sessionResponse {
	resp := sessionResponse{Authenticated: s.session.IsAuthenticated()}
	if resp.Authenticated {
		if exp, ok := s.session.ExpiresAt(); ok {
			resp.ExpiresAt = &exp
		}
	}
	return resp
}

// handleSession reports whether the panel holds a usable token.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSession())
}

// handleLogin exchanges credentials with the backend and stores the token.
// Storing it starts the sync engine.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req backend.Credentials
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeValidationError(w, "username and password are required")
		return
	}

	token, err := s.backend.Login(r.Context(), req)
	if err != nil {
		// A 401 here means bad credentials, not a dead session.
		if errors.Is(err, backend.ErrAuth) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.writeBackendError(w, r, "login", err)
		return
	}

	if err := s.session.SetToken(r.Context(), token); err != nil {
		s.logger.Error("storing session token failed", "error", err)
		writeInternalError(w, "failed to store session")
		return
	}
	s.directory.Invalidate()
	s.recordActivity(r, audit.ActionLogin, audit.EntitySession, "", map[string]any{"username": req.Username})
	writeJSON(w, http.StatusOK, s.currentSession())
}

// handleLogout ends the session. The backend is told on a best-effort basis;
// the local token is cleared whatever it answers.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.session.IsAuthenticated() {
		if err := s.backend.Logout(r.Context()); err != nil {
			s.logger.Warn("backend logout failed", "error", err)
		}
		s.recordActivity(r, audit.ActionLogout, audit.EntitySession, "", nil)
	}
	s.session.ClearSession()
	s.directory.Invalidate()
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
}

// Minimum password length accepted at signup.
const minPasswordLength = 8

// handleSignup registers an account. It does not log in.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req backend.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case req.Username == "":
		writeValidationError(w, "username is required")
		return
	case !validEmail(req.Email):
		writeValidationError(w, "email is not a valid address")
		return
	case len(req.Password) < minPasswordLength:
		writeValidationError(w, "password must be at least 8 characters")
		return
	}

	if err := s.backend.Signup(r.Context(), req); err != nil {
		s.writeBackendError(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"username": req.Username})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// handlePasswordReset asks the backend to send a reset email. The response is
// the same whether or not the address is registered.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validEmail(req.Email) {
		writeValidationError(w, "email is not a valid address")
		return
	}

	err := s.backend.RequestPasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		s.writeBackendError(w, r, "password reset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}
