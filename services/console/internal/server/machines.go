package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/app"
)

const kindSoldPumps = "sold-pumps"

type machineResponse struct {
	Machine *domain.Machine `json:"machine"`
}

func (s *Server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind == kindSoldPumps {
		s.handleCreateSoldPump(w, r)
		return
	}
	if kind != app.KindPump && kind != app.KindPart {
		writeAppError(w, r, fmt.Errorf("%w: %q", app.ErrUnknownMachineKind, kind))
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
	in := apiclient.MachineInput{
		SerialNo:            trimmed(r, "serial_no"),
		PartNo:              trimmed(r, "part_no"),
		ModelNo:             trimmed(r, "model_no"),
		DateOfManufacturing: trimmed(r, "date_of_manufacturing"),
		Files:               files,
	}
	machine, err := s.app.CreateMachine(r.Context(), kind, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, machineResponse{Machine: machine})
}

func (s *Server) handleCreateSoldPump(w http.ResponseWriter, r *http.Request) {
	var in apiclient.SoldPumpInput
	if !decodeJSON(w, r, &in) {
		return
	}
	machine, err := s.app.CreateSoldPump(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, machineResponse{Machine: machine})
}

func (s *Server) handleMachine(w http.ResponseWriter, r *http.Request) {
	machine, err := s.app.MachineDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, machineResponse{Machine: machine})
}

// handleUpdateMachine takes a multipart form; only non-empty fields are sent
// to the backend.
func (s *Server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	upd := apiclient.MachineUpdate{
		SerialNo:            trimmed(r, "serial_no"),
		PartNo:              trimmed(r, "part_no"),
		ModelNo:             trimmed(r, "model_no"),
		DateOfManufacturing: trimmed(r, "date_of_manufacturing"),
		Customer: domain.Customer{
			CustomerName:    trimmed(r, "customer_name"),
			CustomerCompany: trimmed(r, "customer_company"),
			CustomerContact: trimmed(r, "customer_contact"),
			CustomerEmail:   trimmed(r, "customer_email"),
			CustomerAddress: trimmed(r, "customer_address"),
		},
	}
	files, err := formFiles(r.MultipartForm, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(files) > 1 {
		writeError(w, http.StatusBadRequest, "only one file can be replaced at a time")
		return
	}
	if len(files) == 1 {
		upd.File = &files[0]
	}
	machine, err := s.app.UpdateMachine(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, machineResponse{Machine: machine})
}

func (s *Server) handleModelFromPart(w http.ResponseWriter, r *http.Request) {
	partNo := r.URL.Query().Get("part_no")
	model, err := s.app.ModelFromPart(r.Context(), partNo)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"part_no": partNo, "model_no": model})
}

// handleCustomers feeds the customer company autocomplete. Each call is one
// keystroke; results show up on a later call once the debounce has fired.
func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if !values.Has("search") {
		writeJSON(w, http.StatusOK, s.app.CustomerSuggestions())
		return
	}
	writeJSON(w, http.StatusOK, s.app.SearchCustomers(values.Get("search")))
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return false
	}
	return true
}

// formFiles reads every uploaded file under the given field names.
func formFiles(form *multipart.Form, fields ...string) ([]apiclient.FormFile, error) {
	if form == nil {
		return nil, nil
	}
	var out []apiclient.FormFile
	for _, field := range fields {
		for _, header := range form.File[field] {
			data, err := readFormFile(header)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", header.Filename, err)
			}
			out = append(out, apiclient.FormFile{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return out, nil
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
