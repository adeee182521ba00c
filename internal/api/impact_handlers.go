package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

const maxBodySize = 10 << 20

// listImpacts handles GET impact/
func (h *Handler) listImpacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionView)
	if !ok {
		return
	}

	filter, err := h.impactFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.VRFIn = actor.Permission.VRFIDs

	impacts, count, err := h.storage.ListImpacts(r.Context(), filter)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPage(r, serializeImpacts(r, impacts), count, filter.Limit, filter.Offset))
}

func (h *Handler) impactFilter(r *http.Request) (*model.ImpactFilter, error) {
	q := r.URL.Query()
	filter := &model.ImpactFilter{Query: q.Get("q")}

	var err error
	if filter.Limit, filter.Offset, err = h.pagination(q); err != nil {
		return nil, err
	}
	for _, v := range q["id"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		filter.IDs = append(filter.IDs, id)
	}
	if filter.IPAddressID, err = optionalID(q, "ip_address_id"); err != nil {
		return nil, err
	}
	if filter.DeviceID, err = optionalID(q, "device_id"); err != nil {
		return nil, err
	}
	if filter.VMID, err = optionalID(q, "vm_id"); err != nil {
		return nil, err
	}
	if filter.VRFID, err = optionalID(q, "vrf_id"); err != nil {
		return nil, err
	}
	if filter.Redundancy, err = optionalBool(q, "redundancy"); err != nil {
		return nil, err
	}
	return filter, nil
}

// getImpact handles GET impact/{id}/
func (h *Handler) getImpact(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionView)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	impact, ok := h.visibleImpact(w, r, actor, id)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, serializeImpact(r, impact))
}

// visibleImpact loads an impact the actor may see. Impacts outside the
// actor's VRF constraint are reported as missing.
func (h *Handler) visibleImpact(w http.ResponseWriter, r *http.Request, actor *model.Actor, id int64) (*model.Impact, bool) {
	impact, err := h.storage.GetImpact(r.Context(), id)
	if err == nil && !actor.Permission.Permits(impact) {
		err = storage.ErrImpactNotFound
	}
	if err != nil {
		h.storageError(w, r, err)
		return nil, false
	}
	return impact, true
}

// createImpacts handles POST impact/ with one object or a list. A list is
// created in one transaction.
func (h *Handler) createImpacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}

	body, isList, ok := h.readBody(w, r)
	if !ok {
		return
	}
	log.Debug("Creating impacts", "list", isList)

	if !isList {
		var req impactWrite
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		impact := &model.Impact{}
		req.apply(impact, false)

		if err := h.storage.CreateImpact(r.Context(), impact, auth.WriteOptions(r.Context())); err != nil {
			h.storageError(w, r, err)
			return
		}
		log.Info("Impact created", "id", impact.ID, "impact", impact.Impact)
		h.writeJSON(w, http.StatusCreated, serializeImpact(r, impact))
		return
	}

	var reqs []impactWrite
	if err := json.Unmarshal(body, &reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rows := make([]model.Impact, len(reqs))
	for i := range reqs {
		reqs[i].apply(&rows[i], false)
	}

	saved, err := h.storage.ImportImpacts(r.Context(), rows, auth.WriteOptions(r.Context()))
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impacts created", "count", len(saved))
	h.writeJSON(w, http.StatusCreated, serializeImpacts(r, saved))
}

// updateImpact handles PUT impact/{id}/
func (h *Handler) updateImpact(w http.ResponseWriter, r *http.Request) {
	h.writeImpact(w, r, false)
}

// patchImpact handles PATCH impact/{id}/
func (h *Handler) patchImpact(w http.ResponseWriter, r *http.Request) {
	h.writeImpact(w, r, true)
}

func (h *Handler) writeImpact(w http.ResponseWriter, r *http.Request, partial bool) {
	actor, ok := h.require(w, r, model.ActionChange)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req impactWrite
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if !h.decode(w, r, &req) {
		return
	}

	impact, ok := h.visibleImpact(w, r, actor, id)
	if !ok {
		return
	}
	req.apply(impact, partial)

	if err := h.storage.UpdateImpact(r.Context(), impact, auth.WriteOptions(r.Context())); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impact updated", "id", impact.ID, "partial", partial)
	h.writeJSON(w, http.StatusOK, serializeImpact(r, impact))
}

// bulkUpdateImpacts handles PATCH impact/. A list body patches each object
// by id; an object body is a bulk edit applying the same changes to every
// selected impact or IP address.
func (h *Handler) bulkUpdateImpacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionChange)
	if !ok {
		return
	}

	body, isList, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if !isList {
		var edit model.BulkEdit
		if err := json.Unmarshal(body, &edit); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		edit.Restrict(actor.Permission.DeniedFields)

		updated, err := h.storage.BulkEditImpacts(r.Context(), &edit, auth.WriteOptions(r.Context()))
		if err != nil {
			h.storageError(w, r, err)
			return
		}
		log.Info("Impacts bulk edited", "target", edit.Target, "count", len(updated), "fields", edit.Changed())
		h.writeJSON(w, http.StatusOK, serializeImpacts(r, updated))
		return
	}

	var reqs []impactWrite
	if err := json.Unmarshal(body, &reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rows := make([]model.Impact, 0, len(reqs))
	for _, req := range reqs {
		if req.ID == 0 {
			h.writeError(w, http.StatusBadRequest, "every object must have an id")
			return
		}
		impact, ok := h.visibleImpact(w, r, actor, req.ID)
		if !ok {
			return
		}
		req.apply(impact, true)
		rows = append(rows, *impact)
	}

	saved, err := h.storage.ImportImpacts(r.Context(), rows, auth.WriteOptions(r.Context()))
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impacts updated", "count", len(saved))
	h.writeJSON(w, http.StatusOK, serializeImpacts(r, saved))
}

// deleteImpact handles DELETE impact/{id}/
func (h *Handler) deleteImpact(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionDelete)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := h.visibleImpact(w, r, actor, id); !ok {
		return
	}

	if err := h.storage.DeleteImpact(r.Context(), id, auth.WriteOptions(r.Context())); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impact deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// bulkDeleteRequest selects impacts, or IP addresses of the listing, to
// delete.
type bulkDeleteRequest struct {
	Target model.BulkTarget `json:"target"`
	IDs    []int64          `json:"pk"`
}

// bulkDeleteImpacts handles DELETE impact/ with [{"id": n}, ...] or
// {"target": ..., "pk": [...]}.
func (h *Handler) bulkDeleteImpacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionDelete); !ok {
		return
	}

	body, isList, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req bulkDeleteRequest
	if isList {
		var objs []struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &objs); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		for _, o := range objs {
			req.IDs = append(req.IDs, o.ID)
		}
	} else if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.storage.BulkDeleteImpacts(r.Context(), req.Target, req.IDs, auth.WriteOptions(r.Context()))
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Impacts bulk deleted", "target", req.Target, "count", n)
	w.WriteHeader(http.StatusNoContent)
}

// readBody reads a JSON body and reports whether it is a list.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false, false
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		h.writeError(w, http.StatusBadRequest, "request body is required")
		return nil, false, false
	}
	return body, body[0] == '[', true
}
