package workflow_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type fixture struct {
	store     *memstore.Store
	bookings  *workflow.Bookings
	lifecycle *workflow.Events
	wake      *wakeCounter
	ids       []string
}

// approved returns a fixture with an approved booking "b1" owning n daily instances.
func approved(t *testing.T, n int) fixture {
	t.Helper()
	store := memstore.New()
	store.PutBooking(pendingBooking("b1", fmt.Sprintf(`{"frequency":"daily","endAfter":%d}`, n)))
	wake := &wakeCounter{}
	f := fixture{
		store:     store,
		bookings:  workflow.NewBookings(store, wake, discardLogger()),
		lifecycle: workflow.NewEvents(store, wake, discardLogger()),
		wake:      wake,
	}
	res, err := f.bookings.ApproveBooking(context.Background(), "b1", "admin-1", "")
	require.NoError(t, err)
	require.Len(t, res.InstanceIDs, n)
	f.ids = res.InstanceIDs
	return f
}

func (f fixture) complete(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.lifecycle.StartEvent(ctx, id))
	require.NoError(t, f.lifecycle.CompleteEvent(ctx, id, workflow.CompletionDetails{Notes: "done"}))
}

func (f fixture) bookingStatus(t *testing.T) model.BookingStatus {
	t.Helper()
	b, ok := f.store.Booking("b1")
	require.True(t, ok)
	return b.Status
}

func TestCompleteEvent_RollsUpSingleInstance(t *testing.T) {
	f := approved(t, 1)
	f.complete(t, f.ids[0])

	assert.Equal(t, model.BookingCompleted, f.bookingStatus(t))
	evts := eventTypes(f.store.Events())
	assert.Equal(t, []string{events.EventCompleted, events.BookingCompleted}, evts[len(evts)-2:])

	inst, _ := f.store.Instance(f.ids[0])
	require.NotNil(t, inst.CompletedAt)
}

func TestCompleteEvent_RollsUpCompletedAndCancelled(t *testing.T) {
	f := approved(t, 2)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.CancelEvent(ctx, f.ids[0], "weather", true))
	assert.Equal(t, model.BookingApproved, f.bookingStatus(t))

	f.complete(t, f.ids[1])
	assert.Equal(t, model.BookingCompleted, f.bookingStatus(t))
}

func TestCompleteEvent_RollsUpOnlyAfterLastInstance(t *testing.T) {
	const n = 5
	f := approved(t, n)
	for i, id := range f.ids {
		f.complete(t, id)
		want := model.BookingApproved
		if i == n-1 {
			want = model.BookingCompleted
		}
		assert.Equal(t, want, f.bookingStatus(t), "after completing instance %d", i)
	}

	var rollups int
	for _, e := range f.store.Events() {
		if e.Type == events.BookingCompleted {
			rollups++
		}
	}
	assert.Equal(t, 1, rollups)
}

func TestCancelEvent_AllCancelledCancelsBooking(t *testing.T) {
	f := approved(t, 2)
	ctx := context.Background()
	for _, id := range f.ids {
		require.NoError(t, f.lifecycle.CancelEvent(ctx, id, "venue closed", false))
	}
	assert.Equal(t, model.BookingCancelled, f.bookingStatus(t))
}

func TestCancelEvent_CascadesToEveryAssignment(t *testing.T) {
	f := approved(t, 1)
	id := f.ids[0]
	for i, st := range []model.AssignmentStatus{
		model.AssignmentAssigned,
		model.AssignmentCheckedIn,
		model.AssignmentCheckedOut,
		model.AssignmentCancelled,
	} {
		f.store.PutAssignment(model.StaffAssignment{
			EventInstanceID: id,
			UserID:          fmt.Sprintf("u%d", i),
			Role:            "staff",
			Status:          st,
		})
	}

	require.NoError(t, f.lifecycle.CancelEvent(context.Background(), id, "client request", true))

	assignments := f.store.AssignmentsOf(id)
	require.Len(t, assignments, 4)
	for _, a := range assignments {
		assert.Equal(t, model.AssignmentCancelled, a.Status, "assignment of %s", a.UserID)
	}
	inst, _ := f.store.Instance(id)
	assert.Equal(t, model.EventCancelled, inst.Status)
	assert.Equal(t, "client request", inst.CancellationReason)

	var cancelled events.Event
	for _, e := range f.store.Events() {
		if e.Type == events.EventCancelled {
			cancelled = e
		}
	}
	assert.Equal(t, int64(3), cancelled.Payload["assignments_cancelled"])
	assert.Equal(t, true, cancelled.Payload["notify_client"])
}

func TestAssignEventToManager_IsIdempotent(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]

	require.NoError(t, f.lifecycle.AssignEventToManager(ctx, id, "mgr-1"))
	before := len(f.store.Events())
	require.NoError(t, f.lifecycle.AssignEventToManager(ctx, id, "mgr-1"))

	assignments := f.store.AssignmentsOf(id)
	require.Len(t, assignments, 1)
	assert.Equal(t, model.RoleFieldManager, assignments[0].Role)
	assert.Equal(t, "mgr-1", assignments[0].UserID)
	assert.Len(t, f.store.Events(), before)

	inst, _ := f.store.Instance(id)
	assert.Equal(t, "mgr-1", inst.FieldManagerID)
}

func TestLifecycle_HappyPathPayloads(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]

	require.NoError(t, f.lifecycle.StartEventPreparation(ctx, id, []string{"pack kits", "load van"}))
	inst, _ := f.store.Instance(id)
	assert.Equal(t, model.EventPreparation, inst.Status)
	assert.Equal(t, model.PreparationInProgress, inst.PreparationStatus)

	require.NoError(t, f.lifecycle.MarkEventReady(ctx, id, workflow.ReadyDetails{StaffAssigned: true, VenueConfirmed: true}))
	inst, _ = f.store.Instance(id)
	assert.Equal(t, model.EventPreparation, inst.Status)
	assert.Equal(t, model.PreparationCompleted, inst.PreparationStatus)

	_, err := f.lifecycle.AssignStaff(ctx, id, "u1", "medic")
	require.NoError(t, err)
	checkIn := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "medic", checkIn))
	require.NoError(t, f.lifecycle.StartEvent(ctx, id))
	require.NoError(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "medic", checkIn.Add(2*time.Hour+20*time.Minute)))
	require.NoError(t, f.lifecycle.CompleteEvent(ctx, id, workflow.CompletionDetails{}))

	byType := map[string]events.Event{}
	for _, e := range f.store.Events() {
		byType[e.Type] = e
	}
	assert.Equal(t, []string{"pack kits", "load van"}, byType[events.EventPreparationStarted].Payload["tasks"])
	ready := byType[events.EventReady].Payload
	assert.Equal(t, true, ready["staff_assigned"])
	assert.Equal(t, false, ready["kits_assigned"])
	assert.Equal(t, false, ready["logistics_confirmed"])
	assert.Equal(t, true, ready["venue_confirmed"])

	started := byType[events.EventStarted].Payload["checked_in_staff"].([]map[string]any)
	require.Len(t, started, 1)
	assert.Equal(t, "u1", started[0]["user_id"])

	completed := byType[events.EventCompleted].Payload
	staff := completed["staff"].([]map[string]any)
	require.Len(t, staff, 1)
	assert.Equal(t, 2.33, staff[0]["hours_worked"])
	assert.Equal(t, 2.33, completed["total_hours"])
	assert.Equal(t, id, completed["event_id"])
	assert.Equal(t, "b1", completed["booking_id"])
}

func TestLifecycle_RejectsIllegalTransitions(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]

	require.ErrorIs(t, f.lifecycle.CompleteEvent(ctx, id, workflow.CompletionDetails{}), workflow.ErrInvalidTransition)

	f.complete(t, id)
	require.ErrorIs(t, f.lifecycle.StartEvent(ctx, id), workflow.ErrInvalidTransition)
	require.ErrorIs(t, f.lifecycle.CancelEvent(ctx, id, "late", true), workflow.ErrInvalidTransition)
	require.ErrorIs(t, f.lifecycle.StartEventPreparation(ctx, id, nil), workflow.ErrInvalidTransition)
	require.ErrorIs(t, f.lifecycle.AssignEventToManager(ctx, id, "mgr-1"), workflow.ErrInvalidTransition)
	_, err := f.lifecycle.ReportEventIssue(ctx, id, workflow.IssueReport{IssueType: "late", Description: "x"})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestLifecycle_IssueReportedCanResume(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]

	require.NoError(t, f.lifecycle.StartEvent(ctx, id))
	issueID, err := f.lifecycle.ReportEventIssue(ctx, id, workflow.IssueReport{
		ReportedBy:  "u9",
		IssueType:   "equipment",
		Severity:    model.SeverityHigh,
		Description: "generator failed",
		PhotoURLs:   []string{"https://cdn.example/p1.jpg"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, issueID)

	details, err := f.lifecycle.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EventIssueReported, details.Instance.Status)
	require.Len(t, details.Issues, 1)
	assert.Equal(t, "generator failed", details.Issues[0].Description)
	assert.Equal(t, "open", details.Issues[0].Status)

	require.NoError(t, f.lifecycle.CompleteEvent(ctx, id, workflow.CompletionDetails{}))
	assert.Equal(t, model.BookingCompleted, f.bookingStatus(t))
}

func TestReportEventIssue_Validation(t *testing.T) {
	f := approved(t, 1)
	_, err := f.lifecycle.ReportEventIssue(context.Background(), f.ids[0], workflow.IssueReport{
		IssueType: "safety", Description: "spill", Severity: "urgent",
	})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestLifecycle_UnknownEventAbortsWithoutWrites(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	before := len(f.store.Events())
	wakes := f.wake.n.Load()

	require.ErrorIs(t, f.lifecycle.StartEvent(ctx, "nope"), workflow.ErrNotFound)
	require.ErrorIs(t, f.lifecycle.CompleteEvent(ctx, "nope", workflow.CompletionDetails{}), workflow.ErrNotFound)
	require.ErrorIs(t, f.lifecycle.CancelEvent(ctx, "nope", "", true), workflow.ErrNotFound)
	require.ErrorIs(t, f.lifecycle.AssignEventToManager(ctx, "nope", "mgr"), workflow.ErrNotFound)

	assert.Len(t, f.store.Events(), before)
	assert.Equal(t, wakes, f.wake.n.Load())
}

func TestCheckInOut_Transitions(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	require.ErrorIs(t, f.lifecycle.CheckInStaff(ctx, id, "ghost", "", at), workflow.ErrNotFound)

	inserted, err := f.lifecycle.AssignStaff(ctx, id, "u1", "driver")
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = f.lifecycle.AssignStaff(ctx, id, "u1", "driver")
	require.NoError(t, err)
	assert.False(t, inserted)

	require.ErrorIs(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "", at), workflow.ErrInvalidTransition)
	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "", at))
	require.ErrorIs(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "", at), workflow.ErrInvalidTransition)
	require.ErrorIs(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "", at.Add(-time.Minute)), workflow.ErrValidation)
	require.NoError(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "", at.Add(90*time.Minute)))

	a := f.store.AssignmentsOf(id)
	require.Len(t, a, 1)
	assert.Equal(t, model.AssignmentCheckedOut, a[0].Status)
	assert.Equal(t, 1.5, a[0].HoursWorked)
}

func TestCheckInOut_PerRole(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.lifecycle.AssignEventToManager(ctx, id, "u1"))
	_, err := f.lifecycle.AssignStaff(ctx, id, "u1", "staff")
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", model.RoleFieldManager, at))
	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "staff", at.Add(5*time.Minute)))
	require.ErrorIs(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "medic", at), workflow.ErrNotFound)

	// Without a role, check-out takes the oldest checked-in assignment.
	require.NoError(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "", at.Add(time.Hour)))

	byRole := map[string]model.StaffAssignment{}
	for _, a := range f.store.AssignmentsOf(id) {
		byRole[a.Role] = a
	}
	require.Len(t, byRole, 2)
	assert.Equal(t, model.AssignmentCheckedOut, byRole[model.RoleFieldManager].Status)
	assert.Equal(t, 1.0, byRole[model.RoleFieldManager].HoursWorked)
	assert.Equal(t, model.AssignmentCheckedIn, byRole["staff"].Status)

	require.NoError(t, f.lifecycle.CheckOutStaff(ctx, id, "u1", "staff", at.Add(95*time.Minute)))
	byRole = map[string]model.StaffAssignment{}
	for _, a := range f.store.AssignmentsOf(id) {
		byRole[a.Role] = a
	}
	assert.Equal(t, model.AssignmentCheckedOut, byRole["staff"].Status)
	assert.Equal(t, 1.5, byRole["staff"].HoursWorked)
}

func TestCheckIn_EmptyRolePicksWaitingAssignment(t *testing.T) {
	f := approved(t, 1)
	ctx := context.Background()
	id := f.ids[0]
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.lifecycle.AssignEventToManager(ctx, id, "u1"))
	_, err := f.lifecycle.AssignStaff(ctx, id, "u1", "staff")
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "", at))
	require.NoError(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "", at))
	require.ErrorIs(t, f.lifecycle.CheckInStaff(ctx, id, "u1", "", at), workflow.ErrInvalidTransition)

	for _, a := range f.store.AssignmentsOf(id) {
		assert.Equal(t, model.AssignmentCheckedIn, a.Status, a.Role)
	}
}
