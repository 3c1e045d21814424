package events

import (
	"testing"
	"time"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Kind: KindGameCompleted, GameID: 42})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.GameID != 42 || ev.Kind != KindGameCompleted {
				t.Fatalf("unexpected event: %+v", ev)
			}
			if ev.At.IsZero() {
				t.Fatal("expected timestamp to be set")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // repeat must not panic

	bus.Publish(Event{Kind: KindGameCancelled, GameID: 7})

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()

	_, cancel := bus.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Kind: KindGameCompleted, GameID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
