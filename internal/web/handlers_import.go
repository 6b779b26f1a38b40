package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roadregistry/importer/internal/core"
)

// handleListRecordTypes lists the importable record types.
func (s *Server) handleListRecordTypes(w http.ResponseWriter, r *http.Request) {
	type typeInfo struct {
		Key          string `json:"key"`
		Label        string `json:"label"`
		ColumnCounts []int  `json:"column_counts"`
	}
	defs := core.RecordTypes()
	out := make([]typeInfo, len(defs))
	for i, def := range defs {
		out[i] = typeInfo{Key: def.Key, Label: def.Label, ColumnCounts: def.ColumnCounts}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStartImport accepts a multipart extract upload and starts an
// asynchronous import. The form carries record_type, year, and the
// replace and skip_indexing flags; the file field holds the extract.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large or invalid form: %w", err), http.StatusBadRequest)
		return
	}

	typeKey := r.FormValue("record_type")
	if typeKey == "" {
		s.respondError(w, r, errors.New("missing record_type"), http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(r.FormValue("year"))
	if err != nil {
		s.respondError(w, r, errors.New("missing or invalid year"), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read file: %w", err), http.StatusInternalServerError)
		return
	}

	importID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		TypeKey:      typeKey,
		FileName:     header.Filename,
		Year:         year,
		Replace:      r.FormValue("replace") == "true",
		SkipIndexing: r.FormValue("skip_indexing") == "true",
		Data:         data,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrTooManyImports) {
			status = http.StatusTooManyRequests
		}
		s.respondError(w, r, err, status)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"import_id": importID})
}

// handleImportProgress streams import progress via Server-Sent Events.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent(), data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final accounting, blocking until the
// import completes.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	result, err := s.service.Result(importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelImport cancels an in-progress import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if err := s.service.CancelImport(importID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleImportLog returns recent import log entries, newest first.
func (s *Server) handleImportLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.service.ImportLog(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	type logEntry struct {
		ID          int64  `json:"id"`
		FileName    string `json:"file_name"`
		Year        int    `json:"year"`
		RecordType  string `json:"record_type"`
		RecordCount int    `json:"record_count"`
		ErrorCount  int    `json:"error_count"`
		Status      string `json:"status"`
		ImportedAt  string `json:"imported_at"`
	}
	out := make([]logEntry, len(entries))
	for i, e := range entries {
		out[i] = logEntry{
			ID:          e.ID,
			FileName:    e.FileName,
			Year:        e.Year,
			RecordType:  e.RecordType,
			RecordCount: e.RecordCount,
			ErrorCount:  e.ErrorCount,
			Status:      e.Status,
			ImportedAt:  e.ImportedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
