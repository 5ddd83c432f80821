package progress

import (
	"context"
	"testing"
	"time"

	"docforge/internal/queue"
)

func event(jobID string, status queue.Status, overall float64) Event {
	return Event{
		JobID:           jobID,
		Status:          status,
		Stage:           "analysis",
		OverallProgress: overall,
		Timestamp:       time.Now().UTC(),
	}
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(0, nil)
	sub := hub.Subscribe("j1")
	defer sub.Unsubscribe()

	hub.Publish(context.Background(), event("j1", queue.StatusProcessing, 20))

	select {
	case got := <-sub.Events():
		if got.OverallProgress != 20 {
			t.Fatalf("event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubSnapshotOnSubscribe(t *testing.T) {
	hub := NewHub(0, nil)
	hub.Publish(context.Background(), event("j1", queue.StatusProcessing, 35))

	sub := hub.Subscribe("j1")
	defer sub.Unsubscribe()

	select {
	case got := <-sub.Events():
		if got.OverallProgress != 35 {
			t.Fatalf("snapshot = %+v", got)
		}
	default:
		t.Fatal("expected buffered snapshot")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(0, nil)
	sub := hub.Subscribe("j1")
	defer sub.Unsubscribe()

	// Overfill the buffer; publishing must never block.
	for i := 0; i < defaultSubscriberBuffer*2; i++ {
		hub.Publish(context.Background(), event("j1", queue.StatusProcessing, float64(i)))
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
		default:
			if received != defaultSubscriberBuffer {
				t.Fatalf("received = %d, want %d", received, defaultSubscriberBuffer)
			}
			return
		}
	}
}

func TestHubHonorsConfiguredBuffer(t *testing.T) {
	hub := NewHub(2, nil)
	sub := hub.Subscribe("j1")
	defer sub.Unsubscribe()

	for i := 0; i < 6; i++ {
		hub.Publish(context.Background(), event("j1", queue.StatusProcessing, float64(i)))
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
		default:
			if received != 2 {
				t.Fatalf("received = %d, want the configured buffer of 2", received)
			}
			return
		}
	}
}

func TestHubClosesStreamOnTerminalEvent(t *testing.T) {
	hub := NewHub(0, nil)
	sub := hub.Subscribe("j1")

	hub.Publish(context.Background(), event("j1", queue.StatusCompleted, 100))

	got, ok := <-sub.Events()
	if !ok || got.Status != queue.StatusCompleted {
		t.Fatalf("terminal event = %+v ok=%v", got, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("stream should be closed after terminal event")
	}
	if hub.SubscriberCount("j1") != 0 {
		t.Fatal("terminal event should clear subscribers")
	}
}

func TestHubIsolatesJobs(t *testing.T) {
	hub := NewHub(0, nil)
	subA := hub.Subscribe("a")
	defer subA.Unsubscribe()
	subB := hub.Subscribe("b")
	defer subB.Unsubscribe()

	hub.Publish(context.Background(), event("a", queue.StatusProcessing, 10))

	select {
	case <-subB.Events():
		t.Fatal("event leaked across jobs")
	default:
	}
	select {
	case <-subA.Events():
	default:
		t.Fatal("subscriber for job a missed its event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(0, nil)
	sub := hub.Subscribe("j1")
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	hub.Publish(context.Background(), event("j1", queue.StatusProcessing, 10))
	if hub.SubscriberCount("j1") != 0 {
		t.Fatal("unsubscribed consumer still registered")
	}
}
