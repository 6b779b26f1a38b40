package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roadregistry/importer/internal/dict"
)

// handleListDictionaries lists the dictionary domains.
func (s *Server) handleListDictionaries(w http.ResponseWriter, r *http.Request) {
	domains := dict.Domains()
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDictionary returns the entries of one domain. With
// ?provenance=true each value also carries its curation status, derived
// from which extract years reference it.
func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	domain, ok := dict.ParseDomain(chi.URLParam(r, "domain"))
	if !ok {
		s.respondError(w, r, fmt.Errorf("unknown dictionary domain %q", chi.URLParam(r, "domain")), http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("provenance") == "true" {
		records, err := s.tracker.Classify(r.Context(), domain)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	entries, err := s.dicts.Entries(r.Context(), domain)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	type entry struct {
		ID          int64  `json:"id"`
		Value       string `json:"value"`
		Description string `json:"description,omitempty"`
		ParentID    int64  `json:"parent_id,omitempty"`
	}
	out := make([]entry, len(entries))
	for i, e := range entries {
		out[i] = entry{ID: e.ID, Value: e.Value, Description: e.Description, ParentID: e.ParentID}
	}
	writeJSON(w, http.StatusOK, out)
}
