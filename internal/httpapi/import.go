package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/resourcekit/internal/ingestion"
)

const maxUploadSize = 32 << 20

// importResources creates resources from an uploaded CSV or XLSX file. The
// form carries the file, an optional zero-based header_row and dry_run.
func (s *Server) importResources(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.importer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "import is not enabled"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, r, badRequest("invalid form data: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, badRequest("file required: %v", err))
		return
	}
	defer file.Close()

	req := ingestion.Request{
		LookupKey: key,
		FileName:  header.Filename,
		Data:      file,
	}
	if raw := strings.TrimSpace(r.FormValue("header_row")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			s.writeError(w, r, badRequest("header_row must be a non-negative integer"))
			return
		}
		req.HeaderRowIndex = &idx
	}
	if raw := strings.TrimSpace(r.FormValue("dry_run")); raw != "" {
		dryRun, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, badRequest("dry_run must be a boolean"))
			return
		}
		req.DryRun = dryRun
	}

	summary, err := s.importer.Ingest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !req.DryRun && len(summary.Created) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, summary)
}
