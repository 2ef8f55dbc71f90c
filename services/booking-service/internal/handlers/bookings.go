package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type reviewRequest struct {
	Notes string `json:"notes"`
}

type approveResponse struct {
	BookingID   string   `json:"booking_id"`
	Status      string   `json:"status"`
	EventCount  int      `json:"event_count"`
	InstanceIDs []string `json:"event_ids"`
	Dates       []string `json:"dates"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (a *API) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (a *API) listBookingEvents(w http.ResponseWriter, r *http.Request) {
	list, err := a.bookings.ListBookingEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]eventResponse, 0, len(list))
	for _, e := range list {
		items = append(items, toEvent(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) approveBooking(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := a.bookings.ApproveBooking(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Sub, strings.TrimSpace(req.Notes))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	dates := make([]string, 0, len(res.Dates))
	for _, d := range res.Dates {
		dates = append(dates, d.Format(dateLayout))
	}
	writeJSON(w, http.StatusOK, approveResponse{
		BookingID:   res.BookingID,
		Status:      "approved",
		EventCount:  len(res.InstanceIDs),
		InstanceIDs: res.InstanceIDs,
		Dates:       dates,
	})
}

func (a *API) rejectBooking(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.bookings.RejectBooking(r.Context(), id, claimsFrom(r.Context()).Sub, strings.TrimSpace(req.Notes)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"booking_id": id, "status": "rejected"})
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	cancelled, err := a.bookings.CancelBooking(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id":          id,
		"status":              "cancelled",
		"cancelled_event_ids": cancelled,
	})
}
