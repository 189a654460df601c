package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/workflow"
)

func (s *Server) wizard(w http.ResponseWriter, r *http.Request) (*workflow.Wizard, bool) {
	wz, err := s.app.Wizard(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return nil, false
	}
	return wz, true
}

// step runs one wizard operation and answers with the updated snapshot.
func (s *Server) step(w http.ResponseWriter, r *http.Request, op func(*workflow.Wizard) error) {
	wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if err := op(wz); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wz.Snapshot())
}

func (s *Server) handleWizardStart(w http.ResponseWriter, r *http.Request) {
	wz := s.app.StartWizard(r.Context())
	writeJSON(w, http.StatusCreated, wz.Snapshot())
}

func (s *Server) handleWizardGet(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, func(*workflow.Wizard) error { return nil })
}

func (s *Server) handleWizardClose(w http.ResponseWriter, r *http.Request) {
	if err := s.app.CloseWizard(chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWizardLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SerialNo string `json:"serial_no"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.step(w, r, func(wz *workflow.Wizard) error { return wz.LookupMachine(r.Context(), req.SerialNo) })
}

func (s *Server) handleWizardCustomer(w http.ResponseWriter, r *http.Request) {
	var c domain.Customer
	if !decodeJSON(w, r, &c) {
		return
	}
	s.step(w, r, func(wz *workflow.Wizard) error { return wz.RegisterCustomer(r.Context(), c) })
}

func (s *Server) handleWizardCancelCustomer(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, (*workflow.Wizard).CancelRegistration)
}

func (s *Server) handleWizardDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceTypeID     string `json:"service_type_id"`
		ServicePersonName string `json:"service_person_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.step(w, r, func(wz *workflow.Wizard) error {
		return wz.SetServiceDetails(req.ServiceTypeID, req.ServicePersonName)
	})
}

func (s *Server) handleWizardProblem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Problem  string `json:"problem"`
		Solution string `json:"solution"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.step(w, r, func(wz *workflow.Wizard) error { return wz.SetProblemSolution(req.Problem, req.Solution) })
}

func (s *Server) handleWizardParts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parts []workflow.PartItem `json:"parts"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.step(w, r, func(wz *workflow.Wizard) error { return wz.SetParts(req.Parts) })
}

// handleWizardPartSearch records a keystroke in the part picker and returns
// the current suggestions.
func (s *Server) handleWizardPartSearch(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	search := wz.PartSearch()
	if r.URL.Query().Has("q") {
		search.Input(r.URL.Query().Get("q"))
	}
	writeJSON(w, http.StatusOK, search.Suggestions())
}

func (s *Server) handleWizardFiles(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}
	files, err := formFiles(r.MultipartForm, "files", "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "file is required (field: files)")
		return
	}
	for _, f := range files {
		if _, err := wz.AttachFile(f.Filename, f.ContentType, f.Data); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, wz.Snapshot())
}

func (s *Server) handleWizardRemoveFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if err := wz.RemoveFile(fileID); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			writeAppError(w, r, err)
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wz.Snapshot())
}

func (s *Server) handleWizardNext(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, (*workflow.Wizard).Next)
}

func (s *Server) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, (*workflow.Wizard).Back)
}

func (s *Server) handleWizardSubmit(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	report, err := wz.Submit(r.Context())
	if err != nil {
		s.audit(r, "service_report_submit", "failure", "wizard_id", wz.ID())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "service_report_submit", "success", "wizard_id", wz.ID(), "report_id", report.ID)
	writeJSON(w, http.StatusCreated, wz.Snapshot())
}
