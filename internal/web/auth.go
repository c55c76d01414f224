package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"myhebrewdates/internal/auth"
	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/model"
)

type ctxKey int

const userKey ctxKey = iota

// userFrom returns the authenticated user stored by requireUser.
func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// requireUser accepts either HTTP Basic credentials or a bearer token from
// /api/login and rejects everything else with 401.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) && !errors.Is(err, auth.ErrInvalidToken) {
				appLog.Error("authentication failed", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func (s *Server) authenticate(r *http.Request) (*model.User, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return s.auth.VerifyToken(r.Context(), strings.TrimSpace(token))
		}
	}
	if username, password, ok := r.BasicAuth(); ok {
		return s.auth.Login(r.Context(), username, password)
	}
	return nil, auth.ErrInvalidCredentials
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="MyHebrewDates", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			unauthorized(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	token, exp, err := s.auth.IssueToken(u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	appLog.Info("user logged in", "user_id", u.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}
