package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/locations"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

type locationRequest struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	ValidateAddress bool   `json:"validate_address"`
}

func (a *API) createLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	loc, err := a.locations.CreateLocation(r.Context(), model.Location{
		Name:      strings.TrimSpace(req.Name),
		Address:   strings.TrimSpace(req.Address),
		CreatedBy: claimsFrom(r.Context()).Sub,
	}, locations.WriteOptions{ValidateAddress: req.ValidateAddress})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocation(loc))
}

func (a *API) getLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := a.locations.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocation(loc))
}

func (a *API) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	loc, err := a.locations.UpdateLocation(r.Context(), model.Location{
		ID:      chi.URLParam(r, "id"),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
	}, locations.WriteOptions{ValidateAddress: req.ValidateAddress})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocation(loc))
}

func (a *API) approveLocation(w http.ResponseWriter, r *http.Request) {
	a.reviewLocation(w, r, a.locations.Approve)
}

func (a *API) rejectLocation(w http.ResponseWriter, r *http.Request) {
	a.reviewLocation(w, r, a.locations.Reject)
}

func (a *API) reviewLocation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, reviewerID, notes string) (model.Location, error)) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	loc, err := fn(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Sub, strings.TrimSpace(req.Notes))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocation(loc))
}

func (a *API) deleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := a.locations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
