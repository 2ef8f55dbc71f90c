package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

// Default topics.
const (
	TopicCheckIn  = "attendance.checkin.v1"
	TopicCheckOut = "attendance.checkout.v1"
)

type Staff interface {
	CheckInStaff(ctx context.Context, eventID, userID, role string, at time.Time) error
	CheckOutStaff(ctx context.Context, eventID, userID, role string, at time.Time) error
}

type message struct {
	EventInstanceID string    `json:"event_instance_id"`
	UserID          string    `json:"user_id"`
	Role            string    `json:"role"`
	At              time.Time `json:"at"`
}

func CheckInHandler(staff Staff) Handler {
	return apply(staff.CheckInStaff)
}

func CheckOutHandler(staff Staff) Handler {
	return apply(staff.CheckOutStaff)
}

func apply(fn func(ctx context.Context, eventID, userID, role string, at time.Time) error) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var m message
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", msg.Topic, err, ErrSkip)
		}
		m.EventInstanceID = strings.TrimSpace(m.EventInstanceID)
		m.UserID = strings.TrimSpace(m.UserID)
		if m.EventInstanceID == "" || m.UserID == "" {
			return fmt.Errorf("event_instance_id and user_id are required: %w", ErrSkip)
		}
		at := m.At
		if at.IsZero() {
			at = msg.Time
		}
		if at.IsZero() {
			at = time.Now()
		}

		err := fn(ctx, m.EventInstanceID, m.UserID, strings.TrimSpace(m.Role), at.UTC())
		switch {
		case err == nil:
			return nil
		case errors.Is(err, workflow.ErrNotFound),
			errors.Is(err, workflow.ErrInvalidTransition),
			errors.Is(err, workflow.ErrValidation):
			return fmt.Errorf("%w: %w", ErrSkip, err)
		}
		return err
	}
}
