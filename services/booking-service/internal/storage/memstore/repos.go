package memstore

import (
	"context"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type bookings struct{ t *tx }

func (r bookings) Get(ctx context.Context, id string) (model.Booking, error) {
	if err := r.t.check("bookings.get"); err != nil {
		return model.Booking{}, err
	}
	b, ok := r.t.work.bookings[id]
	if !ok {
		return model.Booking{}, notFound("booking", id)
	}
	return b, nil
}

func (r bookings) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return r.Get(ctx, id)
}

func (r bookings) Review(ctx context.Context, id string, rv workflow.Review) error {
	if err := r.t.check("bookings.review"); err != nil {
		return err
	}
	b, ok := r.t.work.bookings[id]
	if !ok {
		return notFound("booking", id)
	}
	at := rv.At
	b.Status = rv.Status
	b.ApprovedBy = rv.ReviewerID
	b.ApprovedAt = &at
	b.AdminNotes = rv.Notes
	if rv.Generation != "" {
		b.EventGenerationState = rv.Generation
	}
	b.UpdatedAt = now()
	r.t.work.bookings[id] = b
	return nil
}

func (r bookings) SetGenerationResult(ctx context.Context, id string, res workflow.GenerationResult) error {
	if err := r.t.check("bookings.set_generation_result"); err != nil {
		return err
	}
	b, ok := r.t.work.bookings[id]
	if !ok {
		return notFound("booking", id)
	}
	start, end, at := res.SeriesStart, res.SeriesEnd, res.GeneratedAt
	b.EventGenerationState = res.Status
	b.EventCount = res.Count
	b.SeriesStartDate = &start
	b.SeriesEndDate = &end
	b.LastEventGeneratedAt = &at
	b.UpdatedAt = now()
	r.t.work.bookings[id] = b
	return nil
}

func (r bookings) SetStatus(ctx context.Context, id string, status model.BookingStatus) error {
	if err := r.t.check("bookings.set_status"); err != nil {
		return err
	}
	b, ok := r.t.work.bookings[id]
	if !ok {
		return notFound("booking", id)
	}
	b.Status = status
	b.UpdatedAt = now()
	r.t.work.bookings[id] = b
	return nil
}

type instances struct{ t *tx }

func (r instances) InsertBatch(ctx context.Context, batch []model.EventInstance) ([]string, error) {
	if err := r.t.check("instances.insert_batch"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(batch))
	ts := now()
	for _, i := range batch {
		i.CreatedAt, i.UpdatedAt = ts, ts
		r.t.work.instances[i.ID] = i
		ids = append(ids, i.ID)
	}
	return ids, nil
}

func (r instances) Get(ctx context.Context, id string) (model.EventInstance, error) {
	if err := r.t.check("instances.get"); err != nil {
		return model.EventInstance{}, err
	}
	i, ok := r.t.work.instances[id]
	if !ok {
		return model.EventInstance{}, notFound("event", id)
	}
	return i, nil
}

func (r instances) GetForUpdate(ctx context.Context, id string) (model.EventInstance, error) {
	return r.Get(ctx, id)
}

func (r instances) Update(ctx context.Context, inst model.EventInstance) error {
	if err := r.t.check("instances.update"); err != nil {
		return err
	}
	if _, ok := r.t.work.instances[inst.ID]; !ok {
		return notFound("event", inst.ID)
	}
	inst.UpdatedAt = now()
	r.t.work.instances[inst.ID] = inst
	return nil
}

func (r instances) ListByBooking(ctx context.Context, bookingID string) ([]model.EventInstance, error) {
	if err := r.t.check("instances.list_by_booking"); err != nil {
		return nil, err
	}
	return r.t.work.instancesOf(bookingID), nil
}

func (r instances) StatusesByBooking(ctx context.Context, bookingID string) ([]model.EventStatus, error) {
	if err := r.t.check("instances.statuses_by_booking"); err != nil {
		return nil, err
	}
	var out []model.EventStatus
	for _, i := range r.t.work.instancesOf(bookingID) {
		out = append(out, i.Status)
	}
	return out, nil
}

type assignments struct{ t *tx }

func (r assignments) Upsert(ctx context.Context, a model.StaffAssignment) (bool, error) {
	if err := r.t.check("assignments.upsert"); err != nil {
		return false, err
	}
	for _, existing := range r.t.work.assignments {
		if existing.EventInstanceID == a.EventInstanceID && existing.UserID == a.UserID && existing.Role == a.Role {
			return false, nil
		}
	}
	ts := now()
	a.CreatedAt, a.UpdatedAt = ts, ts
	r.t.work.assignments[a.ID] = a
	return true, nil
}

func (r assignments) ListByInstance(ctx context.Context, instanceID string, status model.AssignmentStatus) ([]model.StaffAssignment, error) {
	if err := r.t.check("assignments.list_by_instance"); err != nil {
		return nil, err
	}
	return r.t.work.assignmentsOf(instanceID, status), nil
}

func (r assignments) CancelByInstance(ctx context.Context, instanceID string) (int64, error) {
	if err := r.t.check("assignments.cancel_by_instance"); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range r.t.work.assignments {
		if a.EventInstanceID != instanceID || a.Status == model.AssignmentCancelled {
			continue
		}
		a.Status = model.AssignmentCancelled
		a.UpdatedAt = now()
		r.t.work.assignments[id] = a
		n++
	}
	return n, nil
}

func (r assignments) GetForUpdate(ctx context.Context, instanceID, userID, role string) (model.StaffAssignment, error) {
	if err := r.t.check("assignments.get"); err != nil {
		return model.StaffAssignment{}, err
	}
	for _, a := range r.t.work.assignmentsOf(instanceID, "") {
		if a.UserID == userID && a.Role == role && a.Status != model.AssignmentCancelled {
			return a, nil
		}
	}
	return model.StaffAssignment{}, notFound("assignment", instanceID+"/"+userID+"/"+role)
}

func (r assignments) Update(ctx context.Context, a model.StaffAssignment) error {
	if err := r.t.check("assignments.update"); err != nil {
		return err
	}
	if _, ok := r.t.work.assignments[a.ID]; !ok {
		return notFound("assignment", a.ID)
	}
	a.UpdatedAt = now()
	r.t.work.assignments[a.ID] = a
	return nil
}

type issues struct{ t *tx }

func (r issues) Insert(ctx context.Context, issue model.EventIssue) (string, error) {
	if err := r.t.check("issues.insert"); err != nil {
		return "", err
	}
	issue.CreatedAt = now()
	r.t.work.issues[issue.ID] = issue
	return issue.ID, nil
}

func (r issues) ListByInstance(ctx context.Context, instanceID string) ([]model.EventIssue, error) {
	if err := r.t.check("issues.list_by_instance"); err != nil {
		return nil, err
	}
	var out []model.EventIssue
	for _, i := range r.t.work.issues {
		if i.EventInstanceID == instanceID {
			out = append(out, i)
		}
	}
	return out, nil
}

type outbox struct{ t *tx }

func (r outbox) Append(ctx context.Context, e events.Event) error {
	if err := r.t.check("outbox.append"); err != nil {
		return err
	}
	r.t.work.outbox = append(r.t.work.outbox, e)
	return nil
}
