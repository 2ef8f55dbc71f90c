package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/goleak"

	"github.com/md-rashed-zaman/staffops/libs/kafkax"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type memInbox struct {
	mu       sync.Mutex
	seen     map[string]bool
	failures int
}

func (i *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failures > 0 {
		i.failures--
		return false, errors.New("inbox unavailable")
	}
	if i.seen[id] {
		return false, nil
	}
	i.seen[id] = true
	return true, nil
}

func (i *memInbox) Forget(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, id)
	return nil
}

type call struct {
	op, eventID, userID, role string
	at                        time.Time
}

type fakeStaff struct {
	mu    sync.Mutex
	calls []call
	errs  []error
}

func (s *fakeStaff) record(op, eventID, userID, role string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{op, eventID, userID, role, at})
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *fakeStaff) CheckInStaff(_ context.Context, eventID, userID, role string, at time.Time) error {
	return s.record("in", eventID, userID, role, at)
}

func (s *fakeStaff) CheckOutStaff(_ context.Context, eventID, userID, role string, at time.Time) error {
	return s.record("out", eventID, userID, role, at)
}

func kafkaMsg(offset int64, id, body string) kafka.Message {
	return kafka.Message{
		Topic:  TopicCheckIn,
		Offset: offset,
		Value:  []byte(body),
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{
			EventID:   id,
			EventType: "attendance.checkin",
		}),
	}
}

func run(t *testing.T, reader *fakeReader, inbox Inbox, handler Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(logger, inbox, reader, Config{RetryAttempts: 2, RetryWait: time.Millisecond}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	<-done
}

func TestConsumerAppliesCheckInAndDropsDuplicates(t *testing.T) {
	body := `{"event_instance_id":"e1","user_id":"u1","role":"staff","at":"2024-05-06T09:00:00Z"}`
	reader := newFakeReader(kafkaMsg(1, "m1", body), kafkaMsg(2, "m1", body))
	inbox := &memInbox{seen: map[string]bool{}}
	staff := &fakeStaff{}

	run(t, reader, inbox, CheckInHandler(staff))

	if len(staff.calls) != 1 {
		t.Fatalf("expected 1 check-in, got %d", len(staff.calls))
	}
	got := staff.calls[0]
	if got.op != "in" || got.eventID != "e1" || got.userID != "u1" || got.role != "staff" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if !got.at.Equal(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected at 09:00, got %s", got.at)
	}
	if len(reader.committed) != 2 {
		t.Fatalf("expected both offsets committed, got %v", reader.committed)
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
}

func TestConsumerSkipsPermanentFailures(t *testing.T) {
	reader := newFakeReader(
		kafkaMsg(1, "m1", `not json`),
		kafkaMsg(2, "m2", `{"event_instance_id":"","user_id":"u1"}`),
		kafkaMsg(3, "m3", `{"event_instance_id":"e1","user_id":"u1"}`),
	)
	inbox := &memInbox{seen: map[string]bool{}}
	staff := &fakeStaff{errs: []error{workflow.ErrInvalidTransition}}

	run(t, reader, inbox, CheckOutHandler(staff))

	if len(staff.calls) != 1 {
		t.Fatalf("expected 1 call without retry, got %d", len(staff.calls))
	}
	if staff.calls[0].at.IsZero() {
		t.Fatal("expected a default timestamp")
	}
	if !inbox.seen["m3"] {
		t.Fatal("expected skipped message to stay recorded")
	}
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	reader := newFakeReader(
		kafkaMsg(1, "m1", `{"event_instance_id":"e1","user_id":"u1"}`),
		kafkaMsg(2, "m2", `{"event_instance_id":"e2","user_id":"u1"}`),
	)
	inbox := &memInbox{seen: map[string]bool{}}
	transient := errors.New("connection reset")
	staff := &fakeStaff{errs: []error{transient, nil, transient, transient}}

	run(t, reader, inbox, CheckInHandler(staff))

	if len(staff.calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(staff.calls))
	}
	if !inbox.seen["m1"] {
		t.Fatal("expected m1 recorded after retry succeeded")
	}
	if inbox.seen["m2"] {
		t.Fatal("expected m2 forgotten after retries were exhausted")
	}
}

func TestConsumerFallsBackToOffsetIdentity(t *testing.T) {
	msg := kafka.Message{Topic: TopicCheckIn, Partition: 0, Offset: 7, Value: []byte(`{"event_instance_id":"e1","user_id":"u1"}`)}
	reader := newFakeReader(msg)
	inbox := &memInbox{seen: map[string]bool{}}

	run(t, reader, inbox, CheckInHandler(&fakeStaff{}))

	if !inbox.seen[TopicCheckIn+"/0/7"] {
		t.Fatalf("expected offset-derived id, got %v", inbox.seen)
	}
}

func TestConsumerHoldsOffsetUntilInboxRecovers(t *testing.T) {
	reader := newFakeReader(kafkaMsg(1, "m1", `{"event_instance_id":"e1","user_id":"u1"}`))
	inbox := &memInbox{seen: map[string]bool{}, failures: 2}
	staff := &fakeStaff{}

	run(t, reader, inbox, CheckInHandler(staff))

	if len(staff.calls) != 1 {
		t.Fatalf("expected check-in applied once after inbox recovered, got %d", len(staff.calls))
	}
	if !inbox.seen["m1"] {
		t.Fatal("expected m1 recorded")
	}
	if len(reader.committed) != 1 || reader.committed[0] != 1 {
		t.Fatalf("expected offset 1 committed once, got %v", reader.committed)
	}
}
