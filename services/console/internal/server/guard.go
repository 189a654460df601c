package server

import (
	"context"
	"net/http"
	"strings"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/authstate"
	"pumpconsole/services/console/internal/guard"
)

type guardBody struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
	From     string `json:"from,omitempty"`
}

// requireRole guards a route group. An empty role admits any signed-in user.
func (s *Server) requireRole(role domain.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authorize(w, r, role) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authorize waits for session restore, then admits, redirects to login or
// redirects to the caller's own dashboard. It writes the response when it
// returns false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, role domain.UserRole) bool {
	d := s.decide(r.Context(), guard.Route{Path: r.URL.Path, RequiredRole: role})
	switch d.Kind {
	case guard.Render:
		return true
	case guard.Wait:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "session is being restored")
	default:
		if d.Target == authstate.LoginPath {
			writeJSON(w, http.StatusUnauthorized, guardBody{Error: "unauthorized", Redirect: d.Target, From: d.From})
			return false
		}
		s.audit(r, "access_denied", "failure", "required_role", role)
		writeJSON(w, http.StatusForbidden, guardBody{Error: "forbidden", Redirect: d.Target})
	}
	return false
}

func (s *Server) decide(ctx context.Context, route guard.Route) guard.Decision {
	ctx, cancel := context.WithTimeout(ctx, s.guardTimeout)
	defer cancel()
	return guard.Await(ctx, s.auth, route)
}

type routeResponse struct {
	Route    guard.Route    `json:"route"`
	Decision guard.Decision `json:"decision"`
}

// handleRoute tells the front-end what to do with a navigation to ?path=.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	route, ok := guard.Lookup(path)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{Route: route, Decision: s.decide(r.Context(), route)})
}
