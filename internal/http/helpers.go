package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tally/internal/auth"
	"tally/internal/core"
	"tally/internal/storage"
)

type contextKey string

const identityKey contextKey = "identity"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto HTTP statuses and a JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidFormat),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidDate):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		// Internal detail stays in the log.
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON reads a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(auth.ErrInvalidFormat, err)
	}
	return nil
}

// parseDate accepts calendar days as "2006-01-02".
func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, core.ErrInvalidDate
	}
	return core.Date{Time: t}, nil
}

// requireAuth validates the bearer token and threads the identity through
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		id, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next(w, r.WithContext(ctx))
	}
}

func identityFrom(r *http.Request) (auth.Identity, error) {
	id, ok := r.Context().Value(identityKey).(auth.Identity)
	if !ok {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return id, nil
}
