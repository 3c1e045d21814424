package ws

import (
	"encoding/json"
	"testing"

	"stonepot/internal/events"
)

func TestHub_BroadcastReachesGameWatchers(t *testing.T) {
	hub := NewHub(events.NewBus())

	watcher := &Client{UserID: 1, GameID: 42, Send: make(chan []byte, 1), hub: hub}
	bystander := &Client{UserID: 2, GameID: 99, Send: make(chan []byte, 1), hub: hub}
	hub.register(watcher)
	hub.register(bystander)

	hub.broadcast(events.Event{Kind: events.KindGameCompleted, GameID: 42, WinnerIDs: []int64{7}})

	select {
	case msg := <-watcher.Send:
		var ev events.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.GameID != 42 || ev.Kind != events.KindGameCompleted {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("watcher got no message")
	}

	select {
	case <-bystander.Send:
		t.Fatal("bystander received another game's event")
	default:
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(events.NewBus())

	c := &Client{UserID: 1, GameID: 7, Send: make(chan []byte, 1), hub: hub}
	hub.register(c)
	hub.unregister(c)
	hub.unregister(c) // repeat must not panic

	if _, open := <-c.Send; open {
		t.Fatal("expected send channel closed after unregister")
	}

	// broadcast after unregister must not panic or deliver
	hub.broadcast(events.Event{Kind: events.KindGameCancelled, GameID: 7})
}
