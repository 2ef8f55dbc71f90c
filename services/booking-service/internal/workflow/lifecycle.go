package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/staffops/libs/metrics"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

// Events drives event instances through their lifecycle and keeps staff
// assignments and the owning booking consistent with each transition.
type Events struct {
	store  Store
	notify Notifier
	logger *slog.Logger
	now    func() time.Time
}

func NewEvents(store Store, notify Notifier, logger *slog.Logger) *Events {
	if notify == nil {
		notify = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{store: store, notify: notify, logger: logger, now: time.Now}
}

type ReadyDetails struct {
	StaffAssigned      bool
	KitsAssigned       bool
	LogisticsConfirmed bool
	VenueConfirmed     bool
	Notes              string
}

type CompletionDetails struct {
	Notes string
}

type IssueReport struct {
	ReportedBy  string
	IssueType   string
	Severity    model.IssueSeverity
	Description string
	PhotoURLs   []string
}

type EventDetails struct {
	Instance    model.EventInstance
	Assignments []model.StaffAssignment
	Issues      []model.EventIssue
}

type step func(ctx context.Context, tx Tx, inst *model.EventInstance) error

// run locks the instance, checks op against its status and applies fn in one
// transaction. With lockBooking the owning booking row is locked before the
// instance so that rollups take locks in the same order as booking-level
// operations.
func (s *Events) run(ctx context.Context, op, eventID string, lockBooking bool, fn step) error {
	ctx, correlationID := events.EnsureCorrelationID(ctx)

	var from model.EventStatus
	err := inTx(ctx, s.store, func(tx Tx) error {
		if lockBooking {
			peek, err := tx.Instances().Get(ctx, eventID)
			if err != nil {
				return fmt.Errorf("event %s: %w", eventID, err)
			}
			if _, err := tx.Bookings().GetForUpdate(ctx, peek.BookingID); err != nil {
				return fmt.Errorf("booking %s: %w", peek.BookingID, err)
			}
		}
		inst, err := tx.Instances().GetForUpdate(ctx, eventID)
		if err != nil {
			return fmt.Errorf("event %s: %w", eventID, err)
		}
		from = inst.Status
		if !canTransition(op, inst.Status) {
			return fmt.Errorf("%s on event %s in status %s: %w", op, eventID, inst.Status, ErrInvalidTransition)
		}
		return fn(ctx, tx, &inst)
	})
	metrics.RecordTransition(op, err)
	if err != nil {
		return err
	}

	s.notify.Wake()
	s.logger.Info("event transition",
		"operation", op,
		"event_id", eventID,
		"from", string(from),
		"correlation_id", correlationID,
	)
	return nil
}

func (s *Events) emit(ctx context.Context, tx Tx, eventType string, inst *model.EventInstance, payload map[string]any) error {
	payload["event_id"] = inst.ID
	payload["booking_id"] = inst.BookingID
	payload["date"] = inst.Date.Format(dateLayout)
	return tx.Outbox().Append(ctx, events.New(ctx, eventType, events.AggregateEvent, inst.ID, payload))
}

// AssignEventToManager sets the field manager and records the matching staff
// assignment. Repeating the call with the same manager changes nothing.
func (s *Events) AssignEventToManager(ctx context.Context, eventID, managerID string) error {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return fmt.Errorf("manager id is required: %w", ErrValidation)
	}
	return s.run(ctx, opAssignManager, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inserted, err := tx.Assignments().Upsert(ctx, model.StaffAssignment{
			ID:              uuid.NewString(),
			EventInstanceID: inst.ID,
			UserID:          managerID,
			Role:            model.RoleFieldManager,
			Status:          model.AssignmentAssigned,
		})
		if err != nil {
			return fmt.Errorf("assign manager to event %s: %w", inst.ID, err)
		}
		if !inserted && inst.FieldManagerID == managerID {
			return nil
		}
		inst.FieldManagerID = managerID
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		return s.emit(ctx, tx, events.EventAssignedToManager, inst, map[string]any{
			"manager_id": managerID,
		})
	})
}

func (s *Events) StartEventPreparation(ctx context.Context, eventID string, tasks []string) error {
	return s.run(ctx, opPrepare, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inst.Status = model.EventPreparation
		inst.PreparationStatus = model.PreparationInProgress
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		if tasks == nil {
			tasks = []string{}
		}
		return s.emit(ctx, tx, events.EventPreparationStarted, inst, map[string]any{
			"tasks": tasks,
		})
	})
}

// MarkEventReady completes preparation. The readiness flags are recorded as
// given by the caller.
func (s *Events) MarkEventReady(ctx context.Context, eventID string, d ReadyDetails) error {
	return s.run(ctx, opReady, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inst.PreparationStatus = model.PreparationCompleted
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		return s.emit(ctx, tx, events.EventReady, inst, map[string]any{
			"staff_assigned":      d.StaffAssigned,
			"kits_assigned":       d.KitsAssigned,
			"logistics_confirmed": d.LogisticsConfirmed,
			"venue_confirmed":     d.VenueConfirmed,
			"notes":               d.Notes,
		})
	})
}

func (s *Events) StartEvent(ctx context.Context, eventID string) error {
	return s.run(ctx, opStart, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inst.Status = model.EventInProgress
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		present, err := tx.Assignments().ListByInstance(ctx, inst.ID, model.AssignmentCheckedIn)
		if err != nil {
			return fmt.Errorf("list checked in staff for event %s: %w", inst.ID, err)
		}
		staff := make([]map[string]any, 0, len(present))
		for _, a := range present {
			entry := map[string]any{"user_id": a.UserID, "role": a.Role}
			if a.CheckedInAt != nil {
				entry["checked_in_at"] = a.CheckedInAt.UTC().Format(time.RFC3339)
			}
			staff = append(staff, entry)
		}
		return s.emit(ctx, tx, events.EventStarted, inst, map[string]any{
			"checked_in_staff": staff,
		})
	})
}

// CompleteEvent finishes the instance and rolls the booking up when every
// sibling instance has reached a terminal status.
func (s *Events) CompleteEvent(ctx context.Context, eventID string, d CompletionDetails) error {
	return s.run(ctx, opComplete, eventID, true, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		now := s.now().UTC()
		inst.Status = model.EventCompleted
		inst.CompletedAt = &now
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}

		done, err := tx.Assignments().ListByInstance(ctx, inst.ID, model.AssignmentCheckedOut)
		if err != nil {
			return fmt.Errorf("list checked out staff for event %s: %w", inst.ID, err)
		}
		staff := make([]map[string]any, 0, len(done))
		var total float64
		for _, a := range done {
			staff = append(staff, map[string]any{
				"user_id":      a.UserID,
				"role":         a.Role,
				"hours_worked": a.HoursWorked,
			})
			total += a.HoursWorked
		}
		if err := s.emit(ctx, tx, events.EventCompleted, inst, map[string]any{
			"completed_at": now.Format(time.RFC3339),
			"staff":        staff,
			"total_hours":  roundHours(total),
			"notes":        d.Notes,
		}); err != nil {
			return err
		}
		return s.rollup(ctx, tx, inst.BookingID)
	})
}

// CancelEvent cancels the instance and every staff assignment it owns.
func (s *Events) CancelEvent(ctx context.Context, eventID, reason string, notifyClient bool) error {
	return s.run(ctx, opCancel, eventID, true, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inst.Status = model.EventCancelled
		inst.CancellationReason = reason
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		n, err := tx.Assignments().CancelByInstance(ctx, inst.ID)
		if err != nil {
			return fmt.Errorf("cancel assignments for event %s: %w", inst.ID, err)
		}
		if err := s.emit(ctx, tx, events.EventCancelled, inst, map[string]any{
			"reason":                reason,
			"notify_client":         notifyClient,
			"assignments_cancelled": n,
		}); err != nil {
			return err
		}
		return s.rollup(ctx, tx, inst.BookingID)
	})
}

func (s *Events) ReportEventIssue(ctx context.Context, eventID string, r IssueReport) (string, error) {
	r.IssueType = strings.TrimSpace(r.IssueType)
	r.Description = strings.TrimSpace(r.Description)
	if r.IssueType == "" || r.Description == "" {
		return "", fmt.Errorf("issue type and description are required: %w", ErrValidation)
	}
	if r.Severity == "" {
		r.Severity = model.SeverityMedium
	}
	if !r.Severity.Valid() {
		return "", fmt.Errorf("unknown severity %q: %w", r.Severity, ErrValidation)
	}

	var issueID string
	err := s.run(ctx, opIssue, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		inst.Status = model.EventIssueReported
		if err := tx.Instances().Update(ctx, *inst); err != nil {
			return fmt.Errorf("update event %s: %w", inst.ID, err)
		}
		photos := r.PhotoURLs
		if photos == nil {
			photos = []string{}
		}
		id, err := tx.Issues().Insert(ctx, model.EventIssue{
			ID:              uuid.NewString(),
			EventInstanceID: inst.ID,
			ReportedBy:      r.ReportedBy,
			IssueType:       r.IssueType,
			Severity:        r.Severity,
			Description:     r.Description,
			PhotoURLs:       photos,
			Status:          "open",
		})
		if err != nil {
			return fmt.Errorf("insert issue for event %s: %w", inst.ID, err)
		}
		issueID = id
		return s.emit(ctx, tx, events.EventIssueReported, inst, map[string]any{
			"issue_id":    id,
			"issue_type":  r.IssueType,
			"severity":    string(r.Severity),
			"description": r.Description,
			"photo_urls":  photos,
			"reported_by": r.ReportedBy,
		})
	})
	if err != nil {
		return "", err
	}
	return issueID, nil
}

// rollup moves the booking to a terminal status once no sibling instance is
// left running. Statuses are re-read inside the caller's transaction.
func (s *Events) rollup(ctx context.Context, tx Tx, bookingID string) error {
	b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("booking %s: %w", bookingID, err)
	}
	if b.Status != model.BookingApproved {
		return nil
	}
	statuses, err := tx.Instances().StatusesByBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("list statuses for booking %s: %w", bookingID, err)
	}
	if len(statuses) == 0 {
		return nil
	}
	allCancelled := true
	for _, st := range statuses {
		if !st.Terminal() {
			return nil
		}
		if st != model.EventCancelled {
			allCancelled = false
		}
	}

	target, eventType := model.BookingCompleted, events.BookingCompleted
	if allCancelled {
		target, eventType = model.BookingCancelled, events.BookingCancelled
	}
	if err := tx.Bookings().SetStatus(ctx, bookingID, target); err != nil {
		return fmt.Errorf("update booking %s: %w", bookingID, err)
	}
	return tx.Outbox().Append(ctx, events.New(ctx, eventType, events.AggregateBooking, bookingID, map[string]any{
		"booking_id":  bookingID,
		"client_id":   b.ClientID,
		"status":      string(target),
		"event_count": len(statuses),
	}))
}

func (s *Events) GetEvent(ctx context.Context, eventID string) (EventDetails, error) {
	var d EventDetails
	err := inTx(ctx, s.store, func(tx Tx) error {
		inst, err := tx.Instances().Get(ctx, eventID)
		if err != nil {
			return fmt.Errorf("event %s: %w", eventID, err)
		}
		assignments, err := tx.Assignments().ListByInstance(ctx, eventID, "")
		if err != nil {
			return err
		}
		issues, err := tx.Issues().ListByInstance(ctx, eventID)
		if err != nil {
			return err
		}
		d = EventDetails{Instance: inst, Assignments: assignments, Issues: issues}
		return nil
	})
	return d, err
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
