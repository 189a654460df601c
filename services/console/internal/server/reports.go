package server

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ArchiveURLHeader carries the presigned archive link of a downloaded PDF.
const ArchiveURLHeader = "X-Archive-Url"

func (s *Server) handleServiceReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.ServiceReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleServiceReportPDF streams the report PDF. With ?link=true and an
// archive configured it answers with the presigned URL instead.
func (s *Server) handleServiceReportPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pdf, err := s.app.ServiceReportPDF(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if pdf.URL != "" {
		if r.URL.Query().Get("link") == "true" {
			writeJSON(w, http.StatusOK, map[string]string{"url": pdf.URL, "filename": pdf.Document.Filename})
			return
		}
		w.Header().Set(ArchiveURLHeader, pdf.URL)
	}
	contentType := pdf.Document.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	filename := pdf.Document.Filename
	if filename == "" {
		filename = fmt.Sprintf("service_report_%s.pdf", id)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf.Document.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf.Document.Data)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Statistics(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleServiceTypeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.ServiceTypeStatistics(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePartNumberStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.PartNumberStatistics(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
