package emulator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// Handler serves the database and page endpoints.
type Handler struct {
	store *Store
}

// NewHandler creates a new Handler.
func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// CreateDatabaseRequest is the body of POST /v1/databases.
type CreateDatabaseRequest struct {
	ID         string                               `json:"id,omitempty"`
	Title      string                               `json:"title,omitempty"`
	Properties map[string]tablestore.PropertySchema `json:"properties"`
}

// CreateDatabase handles POST /v1/databases.
func (h *Handler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req CreateDatabaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	db, err := h.store.CreateDatabase(req.ID, req.Title, req.Properties)
	if err != nil {
		writeStoreError(w, err, "Failed to create database")
		return
	}

	slog.Info("database created", "database_id", db.ID, "properties", len(db.Properties))
	writeJSON(w, http.StatusOK, db)
}

// GetDatabase handles GET /v1/databases/{id}.
func (h *Handler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	db, err := h.store.GetDatabase(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Failed to get database")
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// UpdateDatabase handles PATCH /v1/databases/{id}.
func (h *Handler) UpdateDatabase(w http.ResponseWriter, r *http.Request) {
	var req tablestore.UpdateDatabaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	db, err := h.store.UpdateDatabase(chi.URLParam(r, "id"), req.Properties)
	if err != nil {
		writeStoreError(w, err, "Failed to update database")
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// QueryDatabase handles POST /v1/databases/{id}/query.
func (h *Handler) QueryDatabase(w http.ResponseWriter, r *http.Request) {
	var req tablestore.QueryRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.store.QueryPages(chi.URLParam(r, "id"), req.Filter, req.StartCursor, req.PageSize)
	if err != nil {
		writeStoreError(w, err, "Failed to query database")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreatePage handles POST /v1/pages.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req tablestore.CreatePageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Parent.DatabaseID == "" {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "body.parent.database_id should be defined")
		return
	}

	page, err := h.store.CreatePage(req.Parent.DatabaseID, req.Properties)
	if err != nil {
		writeStoreError(w, err, "Failed to create page")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetPage handles GET /v1/pages/{id}.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.GetPage(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "Failed to get page")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdatePage handles PATCH /v1/pages/{id}.
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req tablestore.UpdatePageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	page, err := h.store.UpdatePage(chi.URLParam(r, "id"), req.Properties)
	if err != nil {
		writeStoreError(w, err, "Failed to update page")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Error parsing JSON body.")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "object_not_found", "Could not find object.")
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, "validation_error", verr.Message)
	default:
		slog.Error(fallback, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", fallback)
	}
}
