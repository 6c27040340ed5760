package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestMessageBuilder_Build(t *testing.T) {
	msg, err := NewMessage().
		WithKey("booking-1").
		WithEventType("booking.created").
		WithValue(map[string]string{"status": "pending"}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}
	if string(msg.Value) != `{"status":"pending"}` {
		t.Errorf("unexpected value: %s", msg.Value)
	}
}

func TestMessageBuilder_EncodeFailure(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if err == nil {
		t.Fatal("expected encoding error")
	}
	if ClassifyError(err) != ErrorTypePermanent {
		t.Errorf("encoding errors must not be retried")
	}
}

func TestRetryCount_CountsPastNine(t *testing.T) {
	msg := Message{}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "bookings.events", logger.Discard())

	var seen []string
	p.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		seen = append(seen, msg.Topic)
		return next(ctx, msg)
	})

	msg, _ := NewMessage().WithKey("b1").WithValue("x").WithEventType("booking.created").Build()
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.messages) != 1 || string(w.messages[0].Key) != "b1" {
		t.Fatalf("unexpected writes: %+v", w.messages)
	}
	if header(w.messages[0], HeaderEventType) != "booking.created" {
		t.Errorf("event type header not written")
	}
	if len(seen) != 1 || seen[0] != "bookings.events" {
		t.Errorf("middleware should see the producer topic, saw %v", seen)
	}
}

func TestProducer_RejectsInvalidAndClosed(t *testing.T) {
	p := newProducer(&fakeWriter{}, nil, "t", logger.Discard())

	if err := p.Publish(context.Background(), Message{Value: []byte("x")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}

	_ = p.Close()
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte("x")}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection refused")}
	dlq := &fakeWriter{}
	p := newProducer(w, dlq, "bookings.events", logger.Discard())

	msg, _ := NewMessage().WithKey("b1").WithValue("x").Build()
	if err := p.Publish(context.Background(), msg); err == nil {
		t.Fatal("expected publish error")
	}

	if len(dlq.messages) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dlq.messages))
	}
	if header(dlq.messages[0], HeaderOriginalTopic) != "bookings.events" {
		t.Errorf("dead letter should carry the original topic")
	}
	if _, ok := msg.Headers[HeaderDLQError]; ok {
		t.Errorf("caller's headers must not be mutated")
	}
}

func TestConsumer_RetriesTransientThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue: []kafka.Message{
			{Topic: "payments.outcomes", Offset: 1, Key: []byte("ok"), Value: []byte("{}")},
			{Topic: "payments.outcomes", Offset: 2, Key: []byte("flaky"), Value: []byte("{}")},
			{Topic: "payments.outcomes", Offset: 3, Key: []byte("bad"), Value: []byte("{}")},
		},
		cancel: cancel,
	}
	dlq := &fakeWriter{}

	calls := map[string]int{}
	handler := func(_ context.Context, msg Message) error {
		calls[msg.Key]++
		switch msg.Key {
		case "flaky":
			if calls[msg.Key] < 3 {
				return apperrors.UpstreamUnavailable("payments", errors.New("down"))
			}
		case "bad":
			return apperrors.InvalidInput("unknown booking")
		}
		return nil
	}

	c := newConsumer(reader, dlq, "payments.outcomes", "readerhub", 3, handler, logger.Discard())
	c.backoff = 0

	if err := c.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if calls["ok"] != 1 || calls["flaky"] != 3 || calls["bad"] != 1 {
		t.Errorf("unexpected handler calls: %v", calls)
	}
	if len(dlq.messages) != 1 || string(dlq.messages[0].Key) != "bad" {
		t.Fatalf("expected only the rejected message in the DLQ, got %d", len(dlq.messages))
	}
	if header(dlq.messages[0], HeaderDLQConsumerGroup) != "readerhub" {
		t.Errorf("dead letter should carry the consumer group")
	}
	if len(reader.committed) != 3 {
		t.Errorf("every message should be committed, got %v", reader.committed)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient},
		{"network text", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"upstream app error", apperrors.UpstreamUnavailable("stripe", errors.New("x")), ErrorTypeTransient},
		{"not found app error", apperrors.NotFound("Booking"), ErrorTypeBusiness},
		{"unknown", errors.New("weird"), ErrorTypePermanent},
		{"explicit transient", NewTransientError("retry me", nil), ErrorTypeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConsumer_MiddlewareWrapsHandlerInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue:  []kafka.Message{{Topic: "payments.outcomes", Offset: 7, Key: []byte("k"), Value: []byte("{}")}},
		cancel: cancel,
	}

	var order []string
	handler := func(_ context.Context, msg Message) error {
		order = append(order, "handler")
		return nil
	}
	c := newConsumer(reader, nil, "payments.outcomes", "readerhub", 3, handler, logger.Discard())
	for _, name := range []string{"outer", "inner"} {
		name := name
		c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
			order = append(order, name)
			return next(ctx, msg)
		})
	}

	if err := c.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Errorf("expected offset 7 committed, got %v", reader.committed)
	}
}
