package changebus

import (
	"context"
	"testing"
	"time"
)

func TestPublishDeliversToVisibleSubscriber(t *testing.T) {
	b := New(4, func(principal, owner string) bool { return principal == owner })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _, err := b.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(Event{Path: "/a.txt", Action: ActionCreate, OwnerID: "alice", Timestamp: time.Now()})
	b.Publish(Event{Path: "/b.txt", Action: ActionCreate, OwnerID: "bob", Timestamp: time.Now()})

	select {
	case d := <-ch:
		if d.Event == nil || d.Event.Path != "/a.txt" {
			t.Fatalf("expected alice's event, got %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case d := <-ch:
		t.Fatalf("did not expect a second delivery (bob's event should be filtered), got %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLaggedMarkerOnOverflow(t *testing.T) {
	b := New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _, err := b.Subscribe(ctx, "p")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		b.Publish(Event{Path: "/f", Action: ActionUpdate, Timestamp: time.Now()})
	}

	sawLag := false
	for i := 0; i < 3; i++ {
		select {
		case d := <-ch:
			if d.Lagged != nil {
				sawLag = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out draining channel")
		}
	}
	if !sawLag {
		t.Fatal("expected a Lagged marker after overflowing the buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4, nil)
	ctx := context.Background()
	ch, unsubscribe, err := b.Subscribe(ctx, "p")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	unsubscribe()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
