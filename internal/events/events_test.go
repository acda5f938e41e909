package events

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewEventRoundTrip(t *testing.T) {
	event, err := NewEvent(NameTicketCreated, TicketCreated{TicketID: "t-1"})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", event)
	}
	if string(event.Data) != `{"ticketId":"t-1"}` {
		t.Fatalf("unexpected data %s", event.Data)
	}

	var payload TicketCreated
	if err := event.Decode(&payload); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if payload.TicketID != "t-1" {
		t.Fatalf("TicketID = %q", payload.TicketID)
	}
}

func TestDecodeRejectsEmptyData(t *testing.T) {
	var payload UserSignup
	if err := (Event{ID: "e"}).Decode(&payload); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewMemoryQueue(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, email := range []string{"a@x.io", "b@x.io"} {
		event, _ := NewEvent(NameUserSignup, UserSignup{Email: email})
		if err := q.Publish(ctx, event); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	got := make(chan string, 2)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, event Event) error {
			var p UserSignup
			if err := event.Decode(&p); err != nil {
				return err
			}
			got <- p.Email
			return nil
		})
	}()

	for _, want := range []string{"a@x.io", "b@x.io"} {
		select {
		case email := <-got:
			if email != want {
				t.Fatalf("got %s, want %s", email, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryQueueRedeliversAfterHandlerError(t *testing.T) {
	q := NewMemoryQueue(2, nil)
	q.retryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event, _ := NewEvent(NameTicketCreated, TicketCreated{TicketID: "t-1"})
	if err := q.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	attempts := make(chan int, 3)
	n := 0
	go func() {
		_ = q.Consume(ctx, func(context.Context, Event) error {
			n++
			attempts <- n
			if n == 1 {
				return errors.New("run store unavailable")
			}
			return nil
		})
	}()

	for want := 1; want <= 2; want++ {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("attempt %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("attempt %d never happened", want)
		}
	}
	select {
	case extra := <-attempts:
		t.Fatalf("unexpected attempt %d after success", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := q.Publish(context.Background(), Event{ID: "e"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Publish() after close = %v, want ErrQueueClosed", err)
	}
	if err := q.Consume(context.Background(), func(context.Context, Event) error { return nil }); err != nil {
		t.Fatalf("Consume() after close = %v", err)
	}
}

func TestMemoryQueuePublishRespectsContextWhenFull(t *testing.T) {
	q := NewMemoryQueue(1, nil)
	if err := q.Publish(context.Background(), Event{ID: "1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Event{ID: "2"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish() on full queue = %v, want deadline exceeded", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestRedisQueueDefaultsAndClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := NewRedisQueue(client, "", nil)
	if q.key != "triage:events" || q.processingKey != "triage:events:processing" {
		t.Fatalf("unexpected keys %s %s", q.key, q.processingKey)
	}

	_ = q.Close()
	if err := q.Publish(context.Background(), Event{ID: "e"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Publish() after close = %v, want ErrQueueClosed", err)
	}
	if err := q.Consume(context.Background(), func(context.Context, Event) error { return nil }); err != nil {
		t.Fatalf("Consume() after close = %v", err)
	}
}

// TRIAGE_TEST_REDIS_ADDR points at a disposable Redis; the test is skipped
// without it.
func TestRedisQueueRequeuesOnHandlerError(t *testing.T) {
	addr := os.Getenv("TRIAGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIAGE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := "triage:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	q := NewRedisQueue(client, key, nil)
	q.pollTimeout = 50 * time.Millisecond
	defer client.Del(context.Background(), q.key, q.processingKey)

	event, _ := NewEvent(NameTicketCreated, TicketCreated{TicketID: "t-1"})
	if err := q.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	consumeCtx, stop := context.WithCancel(ctx)
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(consumeCtx, func(_ context.Context, e Event) error {
			attempts++
			if attempts == 1 {
				return errors.New("run store unavailable")
			}
			if e.ID != event.ID {
				t.Errorf("redelivered %s, want %s", e.ID, event.ID)
			}
			stop()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("event was not redelivered")
	}

	if attempts != 2 {
		t.Fatalf("handler ran %d times, want 2", attempts)
	}
	for _, k := range []string{q.key, q.processingKey} {
		if n, err := client.LLen(ctx, k).Result(); err != nil || n != 0 {
			t.Fatalf("LLen(%s) = %d, %v; want empty", k, n, err)
		}
	}
}

func TestQueuesImplementInterface(t *testing.T) {
	var _ Queue = (*MemoryQueue)(nil)
	var _ Queue = (*RedisQueue)(nil)
}
