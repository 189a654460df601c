package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/app"
	"pumpconsole/services/console/internal/listview"
)

// screenRoles lists the screens open to every signed-in user; the rest are
// admin only.
var screenRoles = map[string]domain.UserRole{
	app.ScreenServiceReports:   "",
	app.ScreenRecentActivities: "",
}

func roleForScreen(name string) domain.UserRole {
	if role, ok := screenRoles[name]; ok {
		return role
	}
	return domain.RoleAdmin
}

func (s *Server) screen(w http.ResponseWriter, r *http.Request) (listview.Controller, bool) {
	name := chi.URLParam(r, "screen")
	ctrl, err := s.app.Screen(name)
	if err != nil {
		writeAppError(w, r, err)
		return nil, false
	}
	if !s.authorize(w, r, roleForScreen(name)) {
		return nil, false
	}
	return ctrl, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.screen(w, r)
	if !ok {
		return
	}
	s.loadList(w, r, ctrl)
}

func (s *Server) handleRecentActivities(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.app.Screen(app.ScreenRecentActivities)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.loadList(w, r, ctrl)
}

func (s *Server) handleMachineReports(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.app.MachineReports(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.loadList(w, r, ctrl)
}

// loadList applies the query parameters over the screen's current query.
// A failed fetch still answers 200 with the previous page and an error
// message, except when the session is gone.
func (s *Server) loadList(w http.ResponseWriter, r *http.Request, ctrl listview.Controller) {
	q, err := listQuery(r, ctrl.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ctrl.Apply(r.Context(), q); err != nil {
		if apiclient.IsAuth(err) {
			writeAppError(w, r, err)
			return
		}
		logger(r).Warn("list load failed", "screen", ctrl.Name(), "err", err)
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

type paramError string

func (e paramError) Error() string { return string(e) }

func listQuery(r *http.Request, current listview.Query) (listview.Query, error) {
	values := r.URL.Query()
	q := current
	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, paramError("page must be a positive integer")
		}
		q.Page = n
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, paramError("limit must be a positive integer")
		}
		q.PageSize = n
	}
	if v := strings.TrimSpace(values.Get("sort_by")); v != "" {
		q.SortField = v
	}
	if v := strings.ToLower(strings.TrimSpace(values.Get("sort_order"))); v != "" {
		switch v {
		case "asc", "ascend", "desc", "descend":
		default:
			return q, paramError("sort_order must be asc or desc")
		}
		q.SortOrder = v
	}
	if values.Has("search") {
		q.Search = strings.TrimSpace(values.Get("search"))
	}
	return q, nil
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
	View    any  `json:"view"`
}

// handleListDelete removes a record once the caller passes confirm=true.
// Without it nothing happens.
func (s *Server) handleListDelete(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.screen(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	confirmed := r.URL.Query().Get("confirm") == "true"
	deleted, err := ctrl.Delete(r.Context(), id, func(string) bool { return confirmed })
	if err != nil && !deleted {
		s.audit(r, "record_delete", "failure", "screen", ctrl.Name(), "id", id)
		writeAppError(w, r, err)
		return
	}
	if deleted {
		s.audit(r, "record_delete", "success", "screen", ctrl.Name(), "id", id)
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted, View: ctrl.View()})
}
