package server

import (
	"net/http"
	"strings"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/authstate"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User     domain.User `json:"user"`
	Redirect string      `json:"redirect"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts, please retry later") {
		s.audit(r, "auth_login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth_login", "failure", "email", req.Email)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth_login", "success", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, userResponse{User: user, Redirect: authstate.GetRedirectPath(&user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context()); err != nil {
		s.audit(r, "auth_logout", "failure")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth_logout", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out", "redirect": authstate.LoginPath})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := s.auth.User()
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, guardBody{Error: "unauthorized", Redirect: authstate.LoginPath})
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: *user, Redirect: authstate.GetRedirectPath(user)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req apiclient.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.RegisterUser(r.Context(), req)
	if err != nil {
		s.audit(r, "user_register", "failure", "email", req.Email, "role", req.Role)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "user_register", "success", "email", req.Email, "role", req.Role)
	writeJSON(w, http.StatusCreated, resp)
}
