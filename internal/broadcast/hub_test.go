package broadcast

import (
	"testing"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
)

func TestBroadcast_DeliversToSubscriber(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	sub := hub.Subscribe("alice")
	defer hub.Unsubscribe(sub)

	event := NewEvent(TypeJobStarted, JobStartedPayload{JobID: "1", OperationKind: "submit-order"})
	hub.Broadcast("alice", event)

	select {
	case got := <-sub.Events():
		if got.Type != TypeJobStarted {
			t.Errorf("Type = %s, want %s", got.Type, TypeJobStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("expected to receive the broadcast event")
	}
}

func TestBroadcast_DoesNotCrossAgents(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	aliceSub := hub.Subscribe("alice")
	bobSub := hub.Subscribe("bob")
	defer hub.Unsubscribe(aliceSub)
	defer hub.Unsubscribe(bobSub)

	hub.Broadcast("alice", NewEvent(TypeJobStarted, nil))

	select {
	case <-bobSub.Events():
		t.Fatal("bob should not receive alice's events")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-aliceSub.Events():
	default:
		t.Fatal("alice should have received her own event")
	}
}

func TestBroadcast_DropsOldestWhenBufferFull(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	hub.bufferSize = 2
	sub := hub.Subscribe("alice")
	defer hub.Unsubscribe(sub)

	hub.Broadcast("alice", NewEvent(TypeJobProgress, JobProgressPayload{Progress: 1}))
	hub.Broadcast("alice", NewEvent(TypeJobProgress, JobProgressPayload{Progress: 2}))
	hub.Broadcast("alice", NewEvent(TypeJobProgress, JobProgressPayload{Progress: 3}))

	first := <-sub.Events()
	second := <-sub.Events()

	p1 := first.Payload.(JobProgressPayload)
	p2 := second.Payload.(JobProgressPayload)
	if p1.Progress != 2 || p2.Progress != 3 {
		t.Errorf("expected oldest event dropped, got progress sequence %d, %d", p1.Progress, p2.Progress)
	}

	select {
	case <-sub.Events():
		t.Error("expected no third buffered event after drop-oldest")
	default:
	}
}

func TestBroadcast_NeverBlocksOnFullSlowSubscriber(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	hub.bufferSize = 1
	sub := hub.Subscribe("alice")
	defer hub.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast("alice", NewEvent(TypeJobProgress, JobProgressPayload{Progress: i}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast should never block even when nobody drains the subscriber")
	}
}

func TestUnsubscribe_RemovesFromSet(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	sub := hub.Subscribe("alice")
	if hub.SubscriberCount("alice") != 1 {
		t.Fatal("expected one subscriber after Subscribe")
	}
	hub.Unsubscribe(sub)
	if hub.SubscriberCount("alice") != 0 {
		t.Error("expected zero subscribers after Unsubscribe")
	}
}

func TestSubscriberCount_MultipleSubscribersSameAgent(t *testing.T) {
	hub := NewHub(common.NewSilentLogger())
	s1 := hub.Subscribe("alice")
	s2 := hub.Subscribe("alice")
	defer hub.Unsubscribe(s1)
	defer hub.Unsubscribe(s2)

	if hub.SubscriberCount("alice") != 2 {
		t.Errorf("SubscriberCount = %d, want 2", hub.SubscriberCount("alice"))
	}
}
