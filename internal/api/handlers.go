package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/config"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// BasePath prefixes every plugin endpoint.
const BasePath = "/api/plugins/gestion-impacts/"

// Handler handles HTTP requests
type Handler struct {
	storage     storage.Storage
	pageSize    int
	maxPageSize int
}

// NewHandler creates a new API handler
func NewHandler(s storage.Storage) *Handler {
	return &Handler{
		storage:     s,
		pageSize:    config.DefaultPageSize,
		maxPageSize: config.DefaultMaxPageSize,
	}
}

// WithPageSize sets the default and maximum page size of list endpoints.
func (h *Handler) WithPageSize(size, maxSize int) *Handler {
	if size > 0 {
		h.pageSize = size
	}
	if maxSize > 0 {
		h.maxPageSize = maxSize
	}
	return h
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Impact CRUD
	mux.HandleFunc("GET "+BasePath+"impact/{$}", h.listImpacts)
	mux.HandleFunc("POST "+BasePath+"impact/{$}", h.createImpacts)
	mux.HandleFunc("PATCH "+BasePath+"impact/{$}", h.bulkUpdateImpacts)
	mux.HandleFunc("DELETE "+BasePath+"impact/{$}", h.bulkDeleteImpacts)
	mux.HandleFunc("POST "+BasePath+"impact/import/{$}", h.importImpacts)
	mux.HandleFunc("GET "+BasePath+"impact/export/{$}", h.exportImpacts)
	mux.HandleFunc("GET "+BasePath+"impact/{id}/{$}", h.getImpact)
	mux.HandleFunc("PUT "+BasePath+"impact/{id}/{$}", h.updateImpact)
	mux.HandleFunc("PATCH "+BasePath+"impact/{id}/{$}", h.patchImpact)
	mux.HandleFunc("DELETE "+BasePath+"impact/{id}/{$}", h.deleteImpact)
	mux.HandleFunc("GET "+BasePath+"impact/{id}/changelog/{$}", h.getImpactChangelog)

	// Derived listing and navigation
	mux.HandleFunc("GET "+BasePath+"ip-addresses/{$}", h.listIPAddressImpacts)
	mux.HandleFunc("GET "+BasePath+"menu/{$}", h.getMenu)

	// Inventory
	mux.HandleFunc("GET /api/ipam/vrfs/{$}", h.listVRFs)
	mux.HandleFunc("POST /api/ipam/vrfs/{$}", h.createVRF)
	mux.HandleFunc("GET /api/ipam/vrfs/{id}/{$}", h.getVRF)
	mux.HandleFunc("DELETE /api/ipam/vrfs/{id}/{$}", h.deleteVRF)

	mux.HandleFunc("GET /api/ipam/ip-addresses/{$}", h.listIPAddresses)
	mux.HandleFunc("POST /api/ipam/ip-addresses/{$}", h.createIPAddress)
	mux.HandleFunc("GET /api/ipam/ip-addresses/{id}/{$}", h.getIPAddress)
	mux.HandleFunc("PUT /api/ipam/ip-addresses/{id}/{$}", h.updateIPAddress)
	mux.HandleFunc("DELETE /api/ipam/ip-addresses/{id}/{$}", h.deleteIPAddress)

	mux.HandleFunc("GET /api/dcim/devices/{$}", h.listDevices)
	mux.HandleFunc("POST /api/dcim/devices/{$}", h.createDevice)
	mux.HandleFunc("GET /api/dcim/devices/{id}/{$}", h.getDevice)
	mux.HandleFunc("DELETE /api/dcim/devices/{id}/{$}", h.deleteDevice)

	mux.HandleFunc("GET /api/dcim/interfaces/{$}", h.listInterfaces)
	mux.HandleFunc("POST /api/dcim/interfaces/{$}", h.createInterface)
	mux.HandleFunc("DELETE /api/dcim/interfaces/{id}/{$}", h.deleteInterface)

	mux.HandleFunc("GET /api/virtualization/virtual-machines/{$}", h.listVirtualMachines)
	mux.HandleFunc("POST /api/virtualization/virtual-machines/{$}", h.createVirtualMachine)
	mux.HandleFunc("GET /api/virtualization/virtual-machines/{id}/{$}", h.getVirtualMachine)
	mux.HandleFunc("DELETE /api/virtualization/virtual-machines/{id}/{$}", h.deleteVirtualMachine)

	mux.HandleFunc("GET /api/virtualization/interfaces/{$}", h.listVMInterfaces)
	mux.HandleFunc("POST /api/virtualization/interfaces/{$}", h.createVMInterface)
	mux.HandleFunc("DELETE /api/virtualization/interfaces/{id}/{$}", h.deleteVMInterface)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// internalError logs the error and writes a generic 500 response
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// errorBody is the payload of a rejected write.
type errorBody struct {
	Error          string              `json:"error"`
	NonFieldErrors []string            `json:"non_field_errors,omitempty"`
	Fields         map[string][]string `json:"fields,omitempty"`
	Row            int                 `json:"row,omitempty"`
	Object         int64               `json:"object,omitempty"`
}

// storageError maps a storage error onto an HTTP response.
func (h *Handler) storageError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.internalError(w, err)
		return
	}
	log.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)

	body := errorBody{Error: err.Error()}

	var verrs *model.ValidationErrors
	var fieldErr *storage.FieldError
	var batchErr *storage.BatchError
	switch {
	case errors.As(err, &verrs):
		body.NonFieldErrors = verrs.NonField
		body.Fields = verrs.Fields
	case errors.As(err, &fieldErr):
		body.Fields = map[string][]string{fieldErr.Field: {fieldErr.Err.Error()}}
	}
	if errors.As(err, &batchErr) {
		body.Row = batchErr.Row
		body.Object = batchErr.ObjectID
	}

	h.writeJSON(w, status, body)
}

// StatusFor returns the HTTP status of an error returned by storage.
func StatusFor(err error) int {
	var verrs *model.ValidationErrors
	var fieldErr *storage.FieldError
	var batchErr *storage.BatchError

	switch {
	case errors.Is(err, storage.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrDuplicateImpact), errors.Is(err, storage.ErrDuplicateName):
		return http.StatusConflict
	case errors.As(err, &verrs), errors.As(err, &fieldErr), errors.As(err, &batchErr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInvalidBulkEdit),
		errors.Is(err, storage.ErrReferenceNotFound),
		errors.Is(err, storage.ErrIPAddressNoVRF):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrImpactNotFound),
		errors.Is(err, storage.ErrIPAddressNotFound),
		errors.Is(err, storage.ErrVRFNotFound),
		errors.Is(err, storage.ErrDeviceNotFound),
		errors.Is(err, storage.ErrVMNotFound),
		errors.Is(err, storage.ErrInterfaceNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// require returns the actor of r when it may perform action.
func (h *Handler) require(w http.ResponseWriter, r *http.Request, action string) (*model.Actor, bool) {
	actor := auth.ActorFrom(r.Context())
	if !actor.Permission.Can(action) {
		log.Warn("Permission denied", "actor", actor.Name, "action", action, "path", r.URL.Path)
		h.writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return nil, false
	}
	return actor, true
}

// pathID parses the {id} path value.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid ID")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// Page is the paginated envelope of list endpoints.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// pagination reads limit and offset. limit=0 asks for the largest page.
func (h *Handler) pagination(q url.Values) (limit, offset int, err error) {
	limit = h.pageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit: %s", v)
		}
		if limit == 0 || limit > h.maxPageSize {
			limit = h.maxPageSize
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset: %s", v)
		}
	}
	return limit, offset, nil
}

func newPage[T any](r *http.Request, results []T, count, limit, offset int) Page[T] {
	if results == nil {
		results = []T{}
	}
	page := Page[T]{Count: count, Results: results}
	if offset+limit < count {
		page.Next = pageLink(r, limit, offset+limit)
	}
	if offset > 0 {
		page.Previous = pageLink(r, limit, max(offset-limit, 0))
	}
	return page
}

func pageLink(r *http.Request, limit, offset int) *string {
	u := *r.URL
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	} else {
		q.Del("offset")
	}
	u.RawQuery = q.Encode()
	link := absoluteURL(r, u.RequestURI())
	return &link
}

func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}

// paginateSlice pages an in-memory result set.
func paginateSlice[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// optionalID reads a positive integer query parameter.
func optionalID(q url.Values, key string) (*int64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s: %s", key, v)
	}
	return &id, nil
}

// optionalBool reads a boolean query parameter.
func optionalBool(q url.Values, key string) (*bool, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", key, v)
	}
	return &b, nil
}
