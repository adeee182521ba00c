package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/importer"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

const maxImportSize = 10 << 20

var contentTypes = map[importer.Format]string{
	importer.FormatCSV:  "text/csv; charset=utf-8",
	importer.FormatJSON: "application/json",
	importer.FormatYAML: "application/yaml",
}

// queryFormat reads ?format=, empty meaning fallback.
func queryFormat(r *http.Request, fallback importer.Format) (importer.Format, error) {
	v := r.URL.Query().Get("format")
	if v == "" {
		return fallback, nil
	}
	return importer.ParseFormat(v)
}

// importImpacts handles POST impact/import/. The body is CSV, JSON or YAML
// records referring to inventory objects by id or name; ?format= skips
// detection. Every row is written or none is.
func (h *Handler) importImpacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	format, err := queryFormat(r, "")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	recs, err := importer.Parse(bytes.NewReader(data), format)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Debug("Importing impacts", "rows", len(recs), "format", format)

	impacts, err := importer.Resolve(r.Context(), h.storage, recs)
	if err != nil {
		var rowErrs importer.Errors
		if !errors.As(err, &rowErrs) {
			h.internalError(w, err)
			return
		}
		body := errorBody{Error: fmt.Sprintf("%d invalid rows", len(rowErrs))}
		for _, re := range rowErrs {
			body.NonFieldErrors = append(body.NonFieldErrors, re.Error())
		}
		log.Warn("Import rejected", "rows", len(rowErrs))
		h.writeJSON(w, http.StatusBadRequest, body)
		return
	}

	if importer.UpdatesExisting(impacts) {
		if _, ok := h.require(w, r, model.ActionChange); !ok {
			return
		}
	}

	saved, err := h.storage.ImportImpacts(r.Context(), impacts, auth.WriteOptions(r.Context()))
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impacts imported", "count", len(saved))
	h.writeJSON(w, http.StatusCreated, serializeImpacts(r, saved))
}

// exportImpacts handles GET impact/export/. It takes the impact list
// filters, without pagination, and writes records that import back.
func (h *Handler) exportImpacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionView)
	if !ok {
		return
	}
	format, err := queryFormat(r, importer.FormatCSV)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := h.impactFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.VRFIn = actor.Permission.VRFIDs
	filter.Limit, filter.Offset = 0, 0

	impacts, _, err := h.storage.ListImpacts(r.Context(), filter)
	if err != nil {
		h.internalError(w, err)
		return
	}
	recs, err := importer.ToRecords(r.Context(), h.storage, impacts, r.URL.Query().Get("with_id") == "true")
	if err != nil {
		h.internalError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := importer.Export(&buf, format, recs); err != nil {
		h.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
