package http

import (
	"log/slog"
	"net/http"
	"time"

	"tally/internal/auth"
	"tally/internal/core"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string `json:"token"`
	Username     string `json:"username"`
	Materialized int    `json:"materialized"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.credentials.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

// handleLogin verifies credentials, runs recurrence catch-up so the first
// ledger read already includes everything due, and returns a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.credentials.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	today := core.Date{Time: time.Now().UTC()}
	materialized, err := s.catchup.CatchUp(r.Context(), id, today)
	if err != nil {
		// Partial catch-up is resumable; the login still succeeds.
		slog.ErrorContext(r.Context(), "Catch-up during login failed",
			"user_id", id.UserID,
			"materialized", materialized,
			"error", err)
	}
	if materialized > 0 {
		s.invalidateCaches(id.UserID)
	}

	token, err := auth.SignToken(id, s.jwtSecret, s.tokenExpiry)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.session.Login(id)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:        token,
		Username:     id.Username,
		Materialized: materialized,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout()
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
