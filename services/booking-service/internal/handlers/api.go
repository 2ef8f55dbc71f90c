package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/staffops/libs/auth"
	"github.com/md-rashed-zaman/staffops/libs/httpx"
	"github.com/md-rashed-zaman/staffops/libs/resilience"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/locations"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/recurrence"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

const CorrelationIDHeader = "X-Correlation-Id"

type BookingService interface {
	ApproveBooking(ctx context.Context, bookingID, approverID, notes string) (workflow.ApprovalResult, error)
	RejectBooking(ctx context.Context, bookingID, reviewerID, notes string) error
	CancelBooking(ctx context.Context, bookingID, reason string) ([]string, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	ListBookingEvents(ctx context.Context, bookingID string) ([]model.EventInstance, error)
}

type EventService interface {
	AssignEventToManager(ctx context.Context, eventID, managerID string) error
	StartEventPreparation(ctx context.Context, eventID string, tasks []string) error
	MarkEventReady(ctx context.Context, eventID string, d workflow.ReadyDetails) error
	StartEvent(ctx context.Context, eventID string) error
	CompleteEvent(ctx context.Context, eventID string, d workflow.CompletionDetails) error
	CancelEvent(ctx context.Context, eventID, reason string, notifyClient bool) error
	ReportEventIssue(ctx context.Context, eventID string, r workflow.IssueReport) (string, error)
	AssignStaff(ctx context.Context, eventID, userID, role string) (bool, error)
	CheckInStaff(ctx context.Context, eventID, userID, role string, at time.Time) error
	CheckOutStaff(ctx context.Context, eventID, userID, role string, at time.Time) error
	GetEvent(ctx context.Context, eventID string) (workflow.EventDetails, error)
}

type LocationService interface {
	CreateLocation(ctx context.Context, in model.Location, opts locations.WriteOptions) (model.Location, error)
	UpdateLocation(ctx context.Context, in model.Location, opts locations.WriteOptions) (model.Location, error)
	Approve(ctx context.Context, id, reviewerID, notes string) (model.Location, error)
	Reject(ctx context.Context, id, reviewerID, notes string) (model.Location, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (model.Location, error)
}

type API struct {
	bookings  BookingService
	events    EventService
	locations LocationService
	logger    *slog.Logger
	jwtSecret string
}

func NewAPI(bookings BookingService, eventSvc EventService, locationSvc LocationService, logger *slog.Logger, jwtSecret string) *API {
	return &API{
		bookings:  bookings,
		events:    eventSvc,
		locations: locationSvc,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

// Routes returns the /api/v1 router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(withCorrelationID, a.requireAuth)

		api.Get("/bookings/{id}", a.getBooking)
		api.Get("/bookings/{id}/events", a.listBookingEvents)
		api.Group(func(admin chi.Router) {
			admin.Use(requireRole(auth.RoleAdmin))
			admin.Post("/bookings/{id}/approve", a.approveBooking)
			admin.Post("/bookings/{id}/reject", a.rejectBooking)
			admin.Post("/bookings/{id}/cancel", a.cancelBooking)
			admin.Post("/locations/{id}/approve", a.approveLocation)
			admin.Post("/locations/{id}/reject", a.rejectLocation)
			admin.Delete("/locations/{id}", a.deleteLocation)
		})

		api.Get("/events/{id}", a.getEvent)
		api.Post("/events/{id}/issues", a.reportIssue)
		api.Post("/events/{id}/staff/{userID}/check-in", a.checkIn)
		api.Post("/events/{id}/staff/{userID}/check-out", a.checkOut)
		api.Group(func(ops chi.Router) {
			ops.Use(requireRole(auth.RoleAdmin, auth.RoleManager))
			ops.Post("/events/{id}/assign-manager", a.assignManager)
			ops.Post("/events/{id}/preparation", a.startPreparation)
			ops.Post("/events/{id}/ready", a.markReady)
			ops.Post("/events/{id}/start", a.startEvent)
			ops.Post("/events/{id}/complete", a.completeEvent)
			ops.Post("/events/{id}/cancel", a.cancelEvent)
			ops.Post("/events/{id}/staff", a.assignStaff)
		})

		api.Post("/locations", a.createLocation)
		api.Get("/locations/{id}", a.getLocation)
		api.Put("/locations/{id}", a.updateLocation)
	})
	return r
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(auth.Claims)
	return c
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, a.jwtSecret)
		if err != nil || claims.Sub == "" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, *claims)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !claimsFrom(r.Context()).HasRole(roles...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withCorrelationID ties every event emitted while serving a request to the
// caller's correlation id, falling back to the request id.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(CorrelationIDHeader))
		if id == "" {
			id = httpx.RequestIDFromContext(r.Context())
		}
		ctx, id := events.EnsureCorrelationID(events.WithCorrelationID(r.Context(), id))
		w.Header().Set(CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, workflow.ErrValidation), errors.Is(err, recurrence.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, workflow.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, resilience.ErrCircuitOpen):
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		a.logger.Error("request failed",
			"err", err,
			"method", r.Method,
			"path", r.URL.Path,
			"correlation_id", events.CorrelationID(r.Context()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// decode reads an optional JSON body; an empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
