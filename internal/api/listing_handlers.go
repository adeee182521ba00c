package api

import (
	"net/http"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/navigation"
)

// listIPAddressImpacts handles GET ip-addresses/
func (h *Handler) listIPAddressImpacts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionView)
	if !ok {
		return
	}

	filter, err := h.ListingFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.VRFIn = actor.Permission.VRFIDs

	rows, count, err := h.storage.ListIPAddressImpacts(r.Context(), filter)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPage(r, rows, count, filter.Limit, filter.Offset))
}

// ListingFilter builds the derived listing filter of a request's query
// string: q, address, vrf_id, has_impact, redundancy, limit and offset.
func (h *Handler) ListingFilter(r *http.Request) (*model.ListingFilter, error) {
	q := r.URL.Query()
	filter := &model.ListingFilter{
		Query:   q.Get("q"),
		Address: q.Get("address"),
	}

	var err error
	if filter.Limit, filter.Offset, err = h.pagination(q); err != nil {
		return nil, err
	}
	if filter.VRFID, err = optionalID(q, "vrf_id"); err != nil {
		return nil, err
	}
	if filter.HasImpact, err = optionalBool(q, "has_impact"); err != nil {
		return nil, err
	}
	if filter.Redundancy, err = optionalBool(q, "redundancy"); err != nil {
		return nil, err
	}
	return filter, nil
}

// getImpactChangelog handles GET impact/{id}/changelog/
func (h *Handler) getImpactChangelog(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.require(w, r, model.ActionView)
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

	changes, err := h.storage.ListObjectChanges(r.Context(), model.ImpactObjectType, id)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if changes == nil {
		changes = []model.ObjectChange{}
	}

	h.writeJSON(w, http.StatusOK, changes)
}

// getMenu handles GET menu/
func (h *Handler) getMenu(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	items := navigation.Menu(actor.Permission)
	if items == nil {
		items = []navigation.MenuItem{}
	}
	h.writeJSON(w, http.StatusOK, items)
}
