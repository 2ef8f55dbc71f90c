package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/staffops/libs/metrics"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/recurrence"
)

// Bookings coordinates booking review and event instance generation.
type Bookings struct {
	store  Store
	notify Notifier
	logger *slog.Logger
	now    func() time.Time
}

func NewBookings(store Store, notify Notifier, logger *slog.Logger) *Bookings {
	if notify == nil {
		notify = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bookings{store: store, notify: notify, logger: logger, now: time.Now}
}

type ApprovalResult struct {
	BookingID   string
	InstanceIDs []string
	Dates       []time.Time
}

// ApproveBooking approves a draft or pending booking and generates one event
// instance per recurrence date. Approval, generation and the resulting events
// commit together; a failure anywhere leaves the booking untouched.
func (s *Bookings) ApproveBooking(ctx context.Context, bookingID, approverID, notes string) (ApprovalResult, error) {
	ctx, correlationID := events.EnsureCorrelationID(ctx)

	var res ApprovalResult
	err := inTx(ctx, s.store, func(tx Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("booking %s: %w", bookingID, err)
		}
		if !b.Status.Reviewable() {
			return fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, ErrInvalidTransition)
		}

		now := s.now().UTC()
		if err := tx.Bookings().Review(ctx, bookingID, Review{
			Status:     model.BookingApproved,
			ReviewerID: approverID,
			Notes:      notes,
			At:         now,
			Generation: model.GenerationPending,
		}); err != nil {
			return fmt.Errorf("approve booking %s: %w", bookingID, err)
		}

		rule, err := recurrence.Parse(b.Recurrence)
		if err != nil {
			return fmt.Errorf("booking %s: %w: %w", bookingID, ErrValidation, err)
		}
		dates, err := recurrence.Expand(b.StartDate, rule)
		if err != nil {
			return fmt.Errorf("booking %s: %w: %w", bookingID, ErrValidation, err)
		}

		instances := make([]model.EventInstance, 0, len(dates))
		for _, d := range dates {
			instances = append(instances, model.EventInstance{
				ID:                  uuid.NewString(),
				BookingID:           bookingID,
				Date:                d,
				StartTime:           b.StartTime,
				EndTime:             b.EndTime,
				LocationID:          b.LocationID,
				Status:              model.EventScheduled,
				PreparationStatus:   model.PreparationNotStarted,
				CheckInRequired:     true,
				SpecialInstructions: b.SpecialInstructions,
			})
		}
		ids, err := tx.Instances().InsertBatch(ctx, instances)
		if err != nil {
			return fmt.Errorf("insert instances for booking %s: %w", bookingID, err)
		}

		if err := tx.Bookings().SetGenerationResult(ctx, bookingID, GenerationResult{
			Status:      model.GenerationCompleted,
			Count:       len(ids),
			SeriesStart: dates[0],
			SeriesEnd:   dates[len(dates)-1],
			GeneratedAt: now,
		}); err != nil {
			return fmt.Errorf("update booking %s: %w", bookingID, err)
		}

		dateStrings := make([]string, 0, len(dates))
		for _, d := range dates {
			dateStrings = append(dateStrings, d.Format(dateLayout))
		}
		if err := tx.Outbox().Append(ctx, events.New(ctx, events.BookingApproved, events.AggregateBooking, bookingID, map[string]any{
			"booking_id":  bookingID,
			"client_id":   b.ClientID,
			"approved_by": approverID,
			"approved_at": now.Format(time.RFC3339),
			"admin_notes": notes,
			"dates":       dateStrings,
		})); err != nil {
			return err
		}
		if err := tx.Outbox().Append(ctx, events.New(ctx, events.EventInstancesGenerated, events.AggregateBooking, bookingID, map[string]any{
			"booking_id":   bookingID,
			"instance_ids": ids,
			"event_count":  len(ids),
		})); err != nil {
			return err
		}

		res = ApprovalResult{BookingID: bookingID, InstanceIDs: ids, Dates: dates}
		return nil
	})
	metrics.RecordTransition("approve_booking", err)
	if err != nil {
		return ApprovalResult{}, err
	}

	s.notify.Wake()
	s.logger.Info("booking approved",
		"booking_id", bookingID,
		"approved_by", approverID,
		"event_count", len(res.InstanceIDs),
		"correlation_id", correlationID,
	)
	return res, nil
}

func (s *Bookings) RejectBooking(ctx context.Context, bookingID, reviewerID, notes string) error {
	ctx, correlationID := events.EnsureCorrelationID(ctx)

	err := inTx(ctx, s.store, func(tx Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("booking %s: %w", bookingID, err)
		}
		if !b.Status.Reviewable() {
			return fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, ErrInvalidTransition)
		}
		now := s.now().UTC()
		if err := tx.Bookings().Review(ctx, bookingID, Review{
			Status:     model.BookingRejected,
			ReviewerID: reviewerID,
			Notes:      notes,
			At:         now,
		}); err != nil {
			return fmt.Errorf("reject booking %s: %w", bookingID, err)
		}
		return tx.Outbox().Append(ctx, events.New(ctx, events.BookingRejected, events.AggregateBooking, bookingID, map[string]any{
			"booking_id":  bookingID,
			"client_id":   b.ClientID,
			"rejected_by": reviewerID,
			"admin_notes": notes,
		}))
	})
	metrics.RecordTransition("reject_booking", err)
	if err != nil {
		return err
	}

	s.notify.Wake()
	s.logger.Info("booking rejected", "booking_id", bookingID, "correlation_id", correlationID)
	return nil
}

// CancelBooking cancels the booking together with every instance that has not
// finished and the staff assignments of those instances.
func (s *Bookings) CancelBooking(ctx context.Context, bookingID, reason string) ([]string, error) {
	ctx, correlationID := events.EnsureCorrelationID(ctx)

	var cancelled []string
	err := inTx(ctx, s.store, func(tx Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("booking %s: %w", bookingID, err)
		}
		if b.Status.Terminal() {
			return fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, ErrInvalidTransition)
		}

		instances, err := tx.Instances().ListByBooking(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("list instances for booking %s: %w", bookingID, err)
		}
		for _, listed := range instances {
			if listed.Status.Terminal() {
				continue
			}
			inst, err := tx.Instances().GetForUpdate(ctx, listed.ID)
			if err != nil {
				return fmt.Errorf("event %s: %w", listed.ID, err)
			}
			inst.Status = model.EventCancelled
			inst.CancellationReason = reason
			if err := tx.Instances().Update(ctx, inst); err != nil {
				return fmt.Errorf("cancel event %s: %w", inst.ID, err)
			}
			if _, err := tx.Assignments().CancelByInstance(ctx, inst.ID); err != nil {
				return fmt.Errorf("cancel assignments for event %s: %w", inst.ID, err)
			}
			cancelled = append(cancelled, inst.ID)
		}

		if err := tx.Bookings().SetStatus(ctx, bookingID, model.BookingCancelled); err != nil {
			return fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}
		return tx.Outbox().Append(ctx, events.New(ctx, events.BookingCancelled, events.AggregateBooking, bookingID, map[string]any{
			"booking_id":          bookingID,
			"client_id":           b.ClientID,
			"reason":              reason,
			"cancelled_event_ids": cancelled,
		}))
	})
	metrics.RecordTransition("cancel_booking", err)
	if err != nil {
		return nil, err
	}

	s.notify.Wake()
	s.logger.Info("booking cancelled",
		"booking_id", bookingID,
		"cancelled_events", len(cancelled),
		"correlation_id", correlationID,
	)
	return cancelled, nil
}

func (s *Bookings) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	var b model.Booking
	err := inTx(ctx, s.store, func(tx Tx) error {
		var err error
		b, err = tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("booking %s: %w", bookingID, err)
		}
		return nil
	})
	return b, err
}

func (s *Bookings) ListBookingEvents(ctx context.Context, bookingID string) ([]model.EventInstance, error) {
	var out []model.EventInstance
	err := inTx(ctx, s.store, func(tx Tx) error {
		if _, err := tx.Bookings().Get(ctx, bookingID); err != nil {
			return fmt.Errorf("booking %s: %w", bookingID, err)
		}
		var err error
		out, err = tx.Instances().ListByBooking(ctx, bookingID)
		return err
	})
	return out, err
}
