package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/staffops/libs/auth"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type assignManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

type preparationRequest struct {
	Tasks []string `json:"tasks"`
}

type readyRequest struct {
	StaffAssigned      bool   `json:"staff_assigned"`
	KitsAssigned       bool   `json:"kits_assigned"`
	LogisticsConfirmed bool   `json:"logistics_confirmed"`
	VenueConfirmed     bool   `json:"venue_confirmed"`
	Notes              string `json:"notes"`
}

type completeRequest struct {
	Notes string `json:"notes"`
}

type cancelEventRequest struct {
	Reason       string `json:"reason"`
	NotifyClient *bool  `json:"notify_client"`
}

type issueRequest struct {
	IssueType   string   `json:"issue_type"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	PhotoURLs   []string `json:"photo_urls"`
}

type assignStaffRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type attendanceRequest struct {
	Role string `json:"role"`
	At   string `json:"at"`
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	d, err := a.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDetails(d))
}

func (a *API) assignManager(w http.ResponseWriter, r *http.Request) {
	var req assignManagerRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ManagerID = strings.TrimSpace(req.ManagerID)
	if req.ManagerID == "" {
		http.Error(w, "manager_id required", http.StatusBadRequest)
		return
	}
	a.transition(w, r, func(id string) error {
		return a.events.AssignEventToManager(r.Context(), id, req.ManagerID)
	})
}

func (a *API) startPreparation(w http.ResponseWriter, r *http.Request) {
	var req preparationRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	a.transition(w, r, func(id string) error {
		return a.events.StartEventPreparation(r.Context(), id, req.Tasks)
	})
}

func (a *API) markReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	a.transition(w, r, func(id string) error {
		return a.events.MarkEventReady(r.Context(), id, workflow.ReadyDetails{
			StaffAssigned:      req.StaffAssigned,
			KitsAssigned:       req.KitsAssigned,
			LogisticsConfirmed: req.LogisticsConfirmed,
			VenueConfirmed:     req.VenueConfirmed,
			Notes:              strings.TrimSpace(req.Notes),
		})
	})
}

func (a *API) startEvent(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(id string) error {
		return a.events.StartEvent(r.Context(), id)
	})
}

func (a *API) completeEvent(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	a.transition(w, r, func(id string) error {
		return a.events.CompleteEvent(r.Context(), id, workflow.CompletionDetails{Notes: strings.TrimSpace(req.Notes)})
	})
}

func (a *API) cancelEvent(w http.ResponseWriter, r *http.Request) {
	var req cancelEventRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	notify := true
	if req.NotifyClient != nil {
		notify = *req.NotifyClient
	}
	a.transition(w, r, func(id string) error {
		return a.events.CancelEvent(r.Context(), id, strings.TrimSpace(req.Reason), notify)
	})
}

func (a *API) reportIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	issueID, err := a.events.ReportEventIssue(r.Context(), chi.URLParam(r, "id"), workflow.IssueReport{
		ReportedBy:  claimsFrom(r.Context()).Sub,
		IssueType:   strings.TrimSpace(req.IssueType),
		Severity:    model.IssueSeverity(strings.ToLower(strings.TrimSpace(req.Severity))),
		Description: strings.TrimSpace(req.Description),
		PhotoURLs:   req.PhotoURLs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"issue_id": issueID})
}

func (a *API) assignStaff(w http.ResponseWriter, r *http.Request) {
	var req assignStaffRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = auth.RoleStaff
	}
	created, err := a.events.AssignStaff(r.Context(), chi.URLParam(r, "id"), req.UserID, role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{"user_id": req.UserID, "role": role, "created": created})
}

func (a *API) checkIn(w http.ResponseWriter, r *http.Request) {
	a.attendance(w, r, a.events.CheckInStaff)
}

func (a *API) checkOut(w http.ResponseWriter, r *http.Request) {
	a.attendance(w, r, a.events.CheckOutStaff)
}

// attendance lets staff record their own check-in/out; managers and admins
// may record it for anyone.
func (a *API) attendance(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, eventID, userID, role string, at time.Time) error) {
	userID := chi.URLParam(r, "userID")
	claims := claimsFrom(r.Context())
	if claims.Sub != userID && !claims.HasRole(auth.RoleAdmin, auth.RoleManager) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var req attendanceRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	at := time.Now().UTC()
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			http.Error(w, "invalid at", http.StatusBadRequest)
			return
		}
		at = t.UTC()
	}
	a.transition(w, r, func(id string) error {
		return fn(r.Context(), id, userID, strings.TrimSpace(req.Role), at)
	})
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, fn func(id string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.events.GetEvent(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDetails(d))
}
