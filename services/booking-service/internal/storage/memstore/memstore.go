// Package memstore is an in-memory workflow.Store. Transactions are
// serialized and work on a copy of the committed state, so a rollback
// discards every write made through the Tx.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type state struct {
	bookings    map[string]model.Booking
	instances   map[string]model.EventInstance
	assignments map[string]model.StaffAssignment
	issues      map[string]model.EventIssue
	outbox      []events.Event
}

func (s state) clone() state {
	c := state{
		bookings:    make(map[string]model.Booking, len(s.bookings)),
		instances:   make(map[string]model.EventInstance, len(s.instances)),
		assignments: make(map[string]model.StaffAssignment, len(s.assignments)),
		issues:      make(map[string]model.EventIssue, len(s.issues)),
		outbox:      append([]events.Event(nil), s.outbox...),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.issues {
		c.issues[k] = v
	}
	return c
}

type Store struct {
	txMu sync.Mutex // held for the lifetime of a transaction

	mu       sync.Mutex
	data     state
	failures map[string]error
}

func New() *Store {
	return &Store{
		data: state{
			bookings:    map[string]model.Booking{},
			instances:   map[string]model.EventInstance{},
			assignments: map[string]model.StaffAssignment{},
			issues:      map[string]model.EventIssue{},
		},
		failures: map[string]error{},
	}
}

// FailOnce makes the next call of the named operation (for example
// "instances.insert_batch") return err.
func (s *Store) FailOnce(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *Store) Begin(ctx context.Context) (workflow.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.fail("begin"); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.Lock()
	work := s.data.clone()
	s.mu.Unlock()
	return &tx{store: s, work: work}, nil
}

func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.data.bookings[b.ID] = b
}

func (s *Store) PutInstance(i model.EventInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.instances[i.ID] = i
}

func (s *Store) PutAssignment(a model.StaffAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.data.assignments[a.ID] = a
}

func (s *Store) Booking(id string) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bookings[id]
	return b, ok
}

func (s *Store) Instance(id string) (model.EventInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.data.instances[id]
	return i, ok
}

func (s *Store) InstancesOf(bookingID string) []model.EventInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.instancesOf(bookingID)
}

func (s *Store) AssignmentsOf(instanceID string) []model.StaffAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.assignmentsOf(instanceID, "")
}

// Events returns committed outbox events in append order.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.data.outbox...)
}

func (st state) instancesOf(bookingID string) []model.EventInstance {
	var out []model.EventInstance
	for _, i := range st.instances {
		if i.BookingID == bookingID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Date.Equal(out[b].Date) {
			return out[a].ID < out[b].ID
		}
		return out[a].Date.Before(out[b].Date)
	})
	return out
}

func (st state) assignmentsOf(instanceID string, status model.AssignmentStatus) []model.StaffAssignment {
	var out []model.StaffAssignment
	for _, a := range st.assignments {
		if a.EventInstanceID != instanceID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type tx struct {
	store *Store
	work  state
	done  bool
}

func (t *tx) Bookings() workflow.BookingRepository       { return bookings{t} }
func (t *tx) Instances() workflow.InstanceRepository     { return instances{t} }
func (t *tx) Assignments() workflow.AssignmentRepository { return assignments{t} }
func (t *tx) Issues() workflow.IssueRepository           { return issues{t} }
func (t *tx) Outbox() workflow.OutboxAppender            { return outbox{t} }

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memstore: tx already closed")
	}
	if err := t.store.fail("commit"); err != nil {
		return err
	}
	t.store.mu.Lock()
	t.store.data = t.work
	t.store.mu.Unlock()
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *tx) check(op string) error {
	if t.done {
		return fmt.Errorf("memstore: %s on closed tx", op)
	}
	return t.store.fail(op)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, workflow.ErrNotFound)
}

var (
	clockMu   sync.Mutex
	lastStamp time.Time
)

// now returns strictly increasing timestamps so rows created in one test
// keep their insertion order.
func now() time.Time {
	clockMu.Lock()
	defer clockMu.Unlock()
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(lastStamp) {
		t = lastStamp.Add(time.Microsecond)
	}
	lastStamp = t
	return t
}
