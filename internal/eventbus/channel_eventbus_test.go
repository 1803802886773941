package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBus(t *testing.T, options ...ChannelEventBusOption) *ChannelEventBus {
	t.Helper()
	bus := NewChannelEventBus(options...)
	t.Cleanup(func() { bus.Close() })
	return bus
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := newTestBus(t, WithWorkerCount(2))

	var received atomic.Int32
	var mu sync.Mutex
	var payload interface{}

	_, err := bus.Subscribe([]EventType{EventTaskExecutionSuccess}, func(ctx context.Context, event Event) error {
		mu.Lock()
		payload = event.Payload()
		mu.Unlock()
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent(EventTaskExecutionSuccess, "T1 done", "test", nil)
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool { return received.Load() == 1 }, "handler never invoked")
	mu.Lock()
	defer mu.Unlock()
	if payload != "T1 done" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSubscriberOnlySeesItsTypes(t *testing.T) {
	bus := newTestBus(t)

	var taskEvents, allEvents atomic.Int32
	bus.Subscribe([]EventType{EventTaskExecutionFailure}, func(ctx context.Context, event Event) error {
		taskEvents.Add(1)
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, event Event) error {
		allEvents.Add(1)
		return nil
	})

	bus.Publish(context.Background(), NewEvent(EventPlanGenerationStarted, nil, "test", nil))
	bus.Publish(context.Background(), NewEvent(EventTaskExecutionFailure, nil, "test", nil))

	waitFor(t, func() bool { return allEvents.Load() == 2 }, "catch-all handler missed events")
	if taskEvents.Load() != 1 {
		t.Errorf("typed handler saw %d events, want 1", taskEvents.Load())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int32
	id, err := bus.Subscribe([]EventType{EventSynthesisStarted}, func(ctx context.Context, event Event) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(context.Background(), NewEvent(EventSynthesisStarted, nil, "test", nil))
	waitFor(t, func() bool { return count.Load() == 1 }, "first event never delivered")

	if err := bus.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	bus.Publish(context.Background(), NewEvent(EventSynthesisStarted, nil, "test", nil))

	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("handler invoked %d times after unsubscribe, want 1", count.Load())
	}
}

func TestHandlerRetry(t *testing.T) {
	bus := newTestBus(t, WithRetries(2, time.Millisecond))

	var attempts atomic.Int32
	bus.Subscribe([]EventType{EventDAGExecutionStarted}, func(ctx context.Context, event Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	bus.Publish(context.Background(), NewEvent(EventDAGExecutionStarted, nil, "test", nil))
	waitFor(t, func() bool { return attempts.Load() == 3 }, "handler was not retried to success")
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewChannelEventBus()
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := bus.Publish(context.Background(), NewEvent(EventQueryProcessingStarted, nil, "test", nil))
	if err == nil {
		t.Fatal("Publish on a closed bus must fail")
	}
	if _, err := bus.Subscribe([]EventType{EventQueryProcessingStarted}, func(context.Context, Event) error { return nil }); err == nil {
		t.Fatal("Subscribe on a closed bus must fail")
	}

	// Close is idempotent.
	if err := bus.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	bus := newTestBus(t)

	if _, err := bus.Subscribe(nil, func(context.Context, Event) error { return nil }); err == nil {
		t.Error("Subscribe without event types must fail")
	}
	if _, err := bus.Subscribe([]EventType{EventSynthesisSuccess}, nil); err == nil {
		t.Error("Subscribe with a nil handler must fail")
	}
	if _, err := bus.SubscribeAll(nil); err == nil {
		t.Error("SubscribeAll with a nil handler must fail")
	}
}

func TestEventMetadata(t *testing.T) {
	event := NewEvent(EventTaskExecutionRetry, "T2", "executor", map[string]interface{}{"attempt": 1}).
		WithMetadata("delay_ms", 100)

	if event.Type() != EventTaskExecutionRetry {
		t.Errorf("type = %s", event.Type())
	}
	if event.Source() != "executor" {
		t.Errorf("source = %s", event.Source())
	}
	if event.Metadata()["attempt"] != 1 || event.Metadata()["delay_ms"] != 100 {
		t.Errorf("metadata = %v", event.Metadata())
	}
	if event.Timestamp() == 0 {
		t.Error("timestamp not set")
	}
}
