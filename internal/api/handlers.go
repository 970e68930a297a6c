package api

import (
	"encoding/json"
	"html"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/mboxvault/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LabelsResponse lists top-level labels.
type LabelsResponse struct {
	Labels []store.LabelSummary `json:"labels"`
}

// LabelDetail describes one label: its place in the hierarchy and a page
// of the emails carrying it.
type LabelDetail struct {
	Label       string               `json:"label"`
	Parent      string               `json:"parent,omitempty"`
	Children    []store.LabelSummary `json:"children"`
	Descendants []string             `json:"descendants"`
	Emails      []store.EmailSummary `json:"emails"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"page_size"`
}

// EmailDetail is a full email with its labels.
type EmailDetail struct {
	store.Email
	Labels []string `json:"labels"`
}

// SearchResult represents search results.
type SearchResult struct {
	Query    string               `json:"query"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Emails   []store.EmailSummary `json:"emails"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// pagination reads page and page_size, clamping both to sane values.
func pagination(r *http.Request) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// handleStats returns archive statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleTopLevelLabels lists labels that have no parent.
func (s *Server) handleTopLevelLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.store.TopLevelLabels()
	if err != nil {
		s.logger.Error("failed to list labels", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve labels")
		return
	}
	writeJSON(w, http.StatusOK, LabelsResponse{Labels: nonNil(labels)})
}

// labelParam returns the label path captured by the wildcard route. chi
// matches against the escaped path when one exists, so segments like
// "%2F" or "%20" arrive still encoded.
func labelParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return raw, raw != ""
	}
	label, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	return label, label != ""
}

// handleLabel returns a label's parent, direct children, all descendants
// and a page of its emails.
func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	label, ok := labelParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_label", "Label path is required")
		return
	}

	parent, found, err := s.store.ParentLabel(label)
	if err != nil {
		s.logger.Error("failed to look up label", "label", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve label")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Label not found")
		return
	}

	children, err := s.store.ChildLabels(label)
	if err != nil {
		s.logger.Error("failed to list child labels", "label", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve label")
		return
	}
	descendants, err := s.store.DescendantLabels(label)
	if err != nil {
		s.logger.Error("failed to list descendant labels", "label", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve label")
		return
	}

	page, pageSize, offset := pagination(r)
	emails, total, err := s.store.EmailsByLabel(label, pageSize, offset)
	if err != nil {
		s.logger.Error("failed to list label emails", "label", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve emails")
		return
	}

	writeJSON(w, http.StatusOK, LabelDetail{
		Label:       label,
		Parent:      parent,
		Children:    nonNil(children),
		Descendants: nonNil(descendants),
		Emails:      nonNil(emails),
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
	})
}

// handleGetEmail returns a single email by ID. With render=html, plain
// text content is HTML-escaped for direct display.
func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	email, err := s.store.GetEmail(id)
	if err != nil {
		s.logger.Error("failed to get email", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve email")
		return
	}
	if email == nil {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}

	labels, err := s.store.EmailLabels(id)
	if err != nil {
		s.logger.Error("failed to get email labels", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve email")
		return
	}

	if r.URL.Query().Get("render") == "html" && email.ContentType == "text/plain" {
		email.Content = html.EscapeString(email.Content)
	}

	writeJSON(w, http.StatusOK, EmailDetail{Email: *email, Labels: nonNil(labels)})
}

// handleDeleteEmail removes an email and its labels. Deleting an unknown
// email succeeds.
func (s *Server) handleDeleteEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.store.DeleteEmail(id)
	if err != nil {
		s.logger.Error("failed to delete email", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete email")
		return
	}
	if deleted {
		s.logger.Info("email deleted via API", "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch searches subject, sender and content. An empty query lists
// every email.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page, pageSize, offset := pagination(r)

	emails, total, err := s.store.SearchEmails(query, pageSize, offset)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}

	writeJSON(w, http.StatusOK, SearchResult{
		Query:    query,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Emails:   nonNil(emails),
	})
}
