package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/recurrence"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type wakeCounter struct{ n atomic.Int32 }

func (w *wakeCounter) Wake() { w.n.Add(1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingBooking(id string, recurrence string) model.Booking {
	return model.Booking{
		ID:                  id,
		ClientID:            "client-1",
		Title:               "Weekly clinic",
		StartDate:           time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		StartTime:           "09:00",
		EndTime:             "12:00",
		LocationID:          "loc-1",
		Recurrence:          []byte(recurrence),
		SpecialInstructions: "bring badges",
		Status:              model.BookingPending,
	}
}

func eventTypes(evts []events.Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func TestApproveBooking_GeneratesInstances(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"weekly","interval":1,"weekDays":[1,3,5],"endAfter":6}`))
	wake := &wakeCounter{}
	svc := workflow.NewBookings(store, wake, discardLogger())

	ctx := events.WithCorrelationID(context.Background(), "req-42")
	res, err := svc.ApproveBooking(ctx, "b1", "admin-1", "looks good")
	require.NoError(t, err)
	require.Len(t, res.InstanceIDs, 6)

	b, _ := store.Booking("b1")
	assert.Equal(t, model.BookingApproved, b.Status)
	assert.Equal(t, model.GenerationCompleted, b.EventGenerationState)
	assert.Equal(t, 6, b.EventCount)
	assert.Equal(t, "admin-1", b.ApprovedBy)
	assert.Equal(t, "looks good", b.AdminNotes)
	require.NotNil(t, b.SeriesStartDate)
	require.NotNil(t, b.SeriesEndDate)
	assert.Equal(t, "2024-05-06", b.SeriesStartDate.Format("2006-01-02"))
	assert.Equal(t, "2024-05-17", b.SeriesEndDate.Format("2006-01-02"))
	require.NotNil(t, b.LastEventGeneratedAt)

	instances := store.InstancesOf("b1")
	require.Len(t, instances, 6)
	for _, inst := range instances {
		assert.Equal(t, model.EventScheduled, inst.Status)
		assert.Equal(t, model.PreparationNotStarted, inst.PreparationStatus)
		assert.True(t, inst.CheckInRequired)
		assert.Equal(t, "09:00", inst.StartTime)
		assert.Equal(t, "loc-1", inst.LocationID)
		assert.Equal(t, "bring badges", inst.SpecialInstructions)
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, inst.Date.Weekday())
		assert.False(t, inst.Date.Before(*b.SeriesStartDate))
		assert.False(t, inst.Date.After(*b.SeriesEndDate))
	}

	evts := store.Events()
	require.Equal(t, []string{events.BookingApproved, events.EventInstancesGenerated}, eventTypes(evts))
	for _, e := range evts {
		assert.Equal(t, "req-42", e.CorrelationID)
	}
	assert.Len(t, evts[0].Payload["dates"], 6)
	assert.Equal(t, res.InstanceIDs, evts[1].Payload["instance_ids"])
	assert.Equal(t, int32(1), wake.n.Load())
}

func TestApproveBooking_NoRecurrenceCreatesSingleInstance(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", ""))
	svc := workflow.NewBookings(store, nil, discardLogger())

	res, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.NoError(t, err)
	require.Len(t, res.Dates, 1)
	assert.Equal(t, "2024-05-06", res.Dates[0].Format("2006-01-02"))

	evts := store.Events()
	require.Len(t, evts, 2)
	assert.NotEmpty(t, evts[0].CorrelationID)
	assert.Equal(t, evts[0].CorrelationID, evts[1].CorrelationID)
}

func TestApproveBooking_NotFound(t *testing.T) {
	store := memstore.New()
	wake := &wakeCounter{}
	svc := workflow.NewBookings(store, wake, discardLogger())

	_, err := svc.ApproveBooking(context.Background(), "missing", "admin-1", "")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Contains(t, err.Error(), "missing")
	assert.Empty(t, store.Events())
	assert.Zero(t, wake.n.Load())
}

func TestApproveBooking_RollsBackAndRetries(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"daily","endAfter":4}`))
	wake := &wakeCounter{}
	svc := workflow.NewBookings(store, wake, discardLogger())

	boom := errors.New("insert failed")
	store.FailOnce("instances.insert_batch", boom)
	_, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.ErrorIs(t, err, boom)

	b, _ := store.Booking("b1")
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Zero(t, b.EventCount)
	assert.Empty(t, store.InstancesOf("b1"))
	assert.Empty(t, store.Events())
	assert.Zero(t, wake.n.Load())

	res, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.NoError(t, err)
	assert.Len(t, res.InstanceIDs, 4)
	assert.Len(t, store.InstancesOf("b1"), 4)
	b, _ = store.Booking("b1")
	assert.Equal(t, 4, b.EventCount)
}

func TestApproveBooking_InvalidRecurrence(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"hourly"}`))
	svc := workflow.NewBookings(store, nil, discardLogger())

	_, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.ErrorIs(t, err, workflow.ErrValidation)
	require.ErrorIs(t, err, recurrence.ErrInvalidRule)

	b, _ := store.Booking("b1")
	assert.Equal(t, model.BookingPending, b.Status)
}

func TestApproveBooking_EmptyExpansionIsValidationFailure(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"daily","endDate":"2024-01-01"}`))
	svc := workflow.NewBookings(store, nil, discardLogger())

	_, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.ErrorIs(t, err, workflow.ErrValidation)
	require.ErrorIs(t, err, recurrence.ErrNoOccurrences)
}

func TestApproveBooking_AlreadyApproved(t *testing.T) {
	store := memstore.New()
	b := pendingBooking("b1", "")
	b.Status = model.BookingApproved
	store.PutBooking(b)
	svc := workflow.NewBookings(store, nil, discardLogger())

	_, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestRejectBooking(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", ""))
	svc := workflow.NewBookings(store, nil, discardLogger())

	require.NoError(t, svc.RejectBooking(context.Background(), "b1", "admin-2", "no capacity"))
	b, _ := store.Booking("b1")
	assert.Equal(t, model.BookingRejected, b.Status)
	assert.Equal(t, "no capacity", b.AdminNotes)
	assert.Equal(t, []string{events.BookingRejected}, eventTypes(store.Events()))

	err := svc.RejectBooking(context.Background(), "b1", "admin-2", "")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestCancelBooking_CascadesToOpenInstances(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"daily","endAfter":3}`))
	bookings := workflow.NewBookings(store, nil, discardLogger())
	lifecycle := workflow.NewEvents(store, nil, discardLogger())
	ctx := context.Background()

	res, err := bookings.ApproveBooking(ctx, "b1", "admin-1", "")
	require.NoError(t, err)
	require.NoError(t, lifecycle.StartEvent(ctx, res.InstanceIDs[0]))
	require.NoError(t, lifecycle.CompleteEvent(ctx, res.InstanceIDs[0], workflow.CompletionDetails{}))
	_, err = lifecycle.AssignStaff(ctx, res.InstanceIDs[1], "u1", "medic")
	require.NoError(t, err)

	cancelled, err := bookings.CancelBooking(ctx, "b1", "client withdrew")
	require.NoError(t, err)
	assert.ElementsMatch(t, res.InstanceIDs[1:], cancelled)

	b, _ := store.Booking("b1")
	assert.Equal(t, model.BookingCancelled, b.Status)
	first, _ := store.Instance(res.InstanceIDs[0])
	assert.Equal(t, model.EventCompleted, first.Status)
	for _, id := range res.InstanceIDs[1:] {
		inst, _ := store.Instance(id)
		assert.Equal(t, model.EventCancelled, inst.Status)
		assert.Equal(t, "client withdrew", inst.CancellationReason)
	}
	for _, a := range store.AssignmentsOf(res.InstanceIDs[1]) {
		assert.Equal(t, model.AssignmentCancelled, a.Status)
	}

	_, err = bookings.CancelBooking(ctx, "b1", "again")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestListBookingEvents(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"daily","interval":2,"endAfter":3}`))
	svc := workflow.NewBookings(store, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.ApproveBooking(ctx, "b1", "admin-1", "")
	require.NoError(t, err)

	list, err := svc.ListBookingEvents(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2024-05-06", list[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-05-10", list[2].Date.Format("2006-01-02"))

	_, err = svc.ListBookingEvents(ctx, "nope")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = svc.GetBooking(ctx, "nope")
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApproveBooking_OverlongSeriesIsValidationFailure(t *testing.T) {
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", `{"frequency":"daily","endDate":"2030-12-31"}`))
	svc := workflow.NewBookings(store, nil, discardLogger())

	_, err := svc.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.ErrorIs(t, err, workflow.ErrValidation)
	require.ErrorIs(t, err, recurrence.ErrTooManyOccurrences)

	b, ok := store.Booking("b1")
	require.True(t, ok)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Empty(t, store.InstancesOf("b1"))
}
