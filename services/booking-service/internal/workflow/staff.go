package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

// AssignStaff adds a staff member to the instance. It reports false when the
// same user already holds the role.
func (s *Events) AssignStaff(ctx context.Context, eventID, userID, role string) (bool, error) {
	userID, role = strings.TrimSpace(userID), strings.TrimSpace(role)
	if userID == "" || role == "" {
		return false, fmt.Errorf("user id and role are required: %w", ErrValidation)
	}

	var inserted bool
	err := s.run(ctx, opAssignStaff, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		var err error
		inserted, err = tx.Assignments().Upsert(ctx, model.StaffAssignment{
			ID:              uuid.NewString(),
			EventInstanceID: inst.ID,
			UserID:          userID,
			Role:            role,
			Status:          model.AssignmentAssigned,
		})
		if err != nil {
			return fmt.Errorf("assign staff to event %s: %w", inst.ID, err)
		}
		if !inserted {
			return nil
		}
		return s.emit(ctx, tx, events.StaffAssigned, inst, map[string]any{
			"user_id": userID,
			"role":    role,
		})
	})
	return inserted, err
}

// CheckInStaff starts attendance for the user's assignment in role. An empty
// role picks the user's oldest assignment that is still waiting for check-in.
func (s *Events) CheckInStaff(ctx context.Context, eventID, userID, role string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	return s.run(ctx, opCheckIn, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		a, err := assignmentFor(ctx, tx, inst.ID, userID, role, model.AssignmentAssigned)
		if err != nil {
			return err
		}
		if a.Status != model.AssignmentAssigned {
			return fmt.Errorf("check in %s on event %s from %s: %w", userID, inst.ID, a.Status, ErrInvalidTransition)
		}
		a.Status = model.AssignmentCheckedIn
		a.CheckedInAt = &at
		if err := tx.Assignments().Update(ctx, a); err != nil {
			return fmt.Errorf("update assignment %s: %w", a.ID, err)
		}
		return s.emit(ctx, tx, events.StaffCheckedIn, inst, map[string]any{
			"user_id":       userID,
			"role":          a.Role,
			"checked_in_at": at.Format(time.RFC3339),
		})
	})
}

// CheckOutStaff closes attendance and records hours worked, rounded to two
// decimals. An empty role picks the user's oldest checked-in assignment.
func (s *Events) CheckOutStaff(ctx context.Context, eventID, userID, role string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	return s.run(ctx, opCheckOut, eventID, false, func(ctx context.Context, tx Tx, inst *model.EventInstance) error {
		a, err := assignmentFor(ctx, tx, inst.ID, userID, role, model.AssignmentCheckedIn)
		if err != nil {
			return err
		}
		if a.Status != model.AssignmentCheckedIn || a.CheckedInAt == nil {
			return fmt.Errorf("check out %s on event %s from %s: %w", userID, inst.ID, a.Status, ErrInvalidTransition)
		}
		if at.Before(*a.CheckedInAt) {
			return fmt.Errorf("check out before check in: %w", ErrValidation)
		}
		a.Status = model.AssignmentCheckedOut
		a.CheckedOutAt = &at
		a.HoursWorked = roundHours(at.Sub(*a.CheckedInAt).Hours())
		if err := tx.Assignments().Update(ctx, a); err != nil {
			return fmt.Errorf("update assignment %s: %w", a.ID, err)
		}
		return s.emit(ctx, tx, events.StaffCheckedOut, inst, map[string]any{
			"user_id":        userID,
			"role":           a.Role,
			"checked_out_at": at.Format(time.RFC3339),
			"hours_worked":   a.HoursWorked,
		})
	})
}

// assignmentFor locks the user's assignment in role. Without a role it takes
// the oldest assignment in want, falling back to the oldest active one so the
// caller reports the transition error against a real row.
func assignmentFor(ctx context.Context, tx Tx, instanceID, userID, role string, want model.AssignmentStatus) (model.StaffAssignment, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		all, err := tx.Assignments().ListByInstance(ctx, instanceID, "")
		if err != nil {
			return model.StaffAssignment{}, fmt.Errorf("list assignments of event %s: %w", instanceID, err)
		}
		var fallback string
		for _, a := range all {
			if a.UserID != userID || a.Status == model.AssignmentCancelled {
				continue
			}
			if fallback == "" {
				fallback = a.Role
			}
			if a.Status == want {
				role = a.Role
				break
			}
		}
		if role == "" {
			role = fallback
		}
		if role == "" {
			return model.StaffAssignment{}, fmt.Errorf("assignment of %s on event %s: %w", userID, instanceID, ErrNotFound)
		}
	}
	a, err := tx.Assignments().GetForUpdate(ctx, instanceID, userID, role)
	if err != nil {
		return model.StaffAssignment{}, fmt.Errorf("assignment of %s as %s on event %s: %w", userID, role, instanceID, err)
	}
	return a, nil
}
