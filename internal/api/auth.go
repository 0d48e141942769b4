package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/nerrad567/feeder-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates an operator and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleWSTicket issues a single-use ticket for the WebSocket upgrade.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, expires := s.tickets.Issue(userIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_at": expires.UTC(),
	})
}
