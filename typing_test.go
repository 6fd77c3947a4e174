package chatflow

import (
	"context"
	"testing"
	"time"
)

func newTestTracker(emitter *fakeEmitter) *TypingTracker {
	return NewTypingTracker(emitter, 7, 9, 1, 30*time.Millisecond)
}

func TestTypingTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("one start per burst, stop after idle", func(t *testing.T) {
		emitter := &fakeEmitter{}
		tracker := newTestTracker(emitter)

		for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
			tracker.InputChanged(ctx, text)
		}
		if got := len(emitter.byType(EventTypingStart)); got != 1 {
			t.Fatalf("expected 1 typing:start for the burst, got %d", got)
		}
		if got := len(emitter.byType(EventTypingStop)); got != 0 {
			t.Fatalf("expected no typing:stop mid-burst, got %d", got)
		}

		deadline := time.After(time.Second)
		for len(emitter.byType(EventTypingStop)) == 0 {
			select {
			case <-deadline:
				t.Fatal("typing:stop never emitted after idle window")
			case <-time.After(5 * time.Millisecond):
			}
		}
		if got := len(emitter.byType(EventTypingStop)); got != 1 {
			t.Fatalf("expected exactly 1 typing:stop, got %d", got)
		}

		p := emitter.byType(EventTypingStart)[0].Payload.(TypingPayload)
		if p.From != 7 || p.ReceiverID != 9 || p.ConversationID != 1 {
			t.Fatalf("unexpected payload %+v", p)
		}
	})

	t.Run("new burst after stop emits start again", func(t *testing.T) {
		emitter := &fakeEmitter{}
		tracker := newTestTracker(emitter)

		tracker.InputChanged(ctx, "a")
		tracker.StopTyping(ctx)
		tracker.InputChanged(ctx, "b")

		if got := len(emitter.byType(EventTypingStart)); got != 2 {
			t.Fatalf("expected 2 typing:start across bursts, got %d", got)
		}
	})

	t.Run("emptied input stops immediately", func(t *testing.T) {
		emitter := &fakeEmitter{}
		tracker := newTestTracker(emitter)

		tracker.InputChanged(ctx, "draft")
		tracker.InputChanged(ctx, "")

		if got := len(emitter.byType(EventTypingStop)); got != 1 {
			t.Fatalf("expected immediate typing:stop on empty input, got %d", got)
		}

		// The idle timer was canceled; no second stop arrives later.
		time.Sleep(80 * time.Millisecond)
		if got := len(emitter.byType(EventTypingStop)); got != 1 {
			t.Fatalf("expected no extra typing:stop, got %d", got)
		}
	})

	t.Run("stop without a burst emits nothing", func(t *testing.T) {
		emitter := &fakeEmitter{}
		tracker := newTestTracker(emitter)

		tracker.StopTyping(ctx)
		tracker.InputChanged(ctx, "   ")

		if len(emitter.events) != 0 {
			t.Fatalf("expected no events, got %v", emitter.events)
		}
	})
}

func TestTypingTrackerPeerSignal(t *testing.T) {
	tracker := newTestTracker(&fakeEmitter{})

	tracker.HandleTypingStart(TypingPayload{From: 9, ConversationID: 1})
	if !tracker.PeerTyping() {
		t.Fatal("expected peer typing after start")
	}

	tracker.HandleTypingStop(TypingPayload{From: 9, ConversationID: 1})
	if tracker.PeerTyping() {
		t.Fatal("expected peer idle after stop")
	}

	// Events for another conversation never touch this tracker.
	tracker.HandleTypingStart(TypingPayload{From: 9, ConversationID: 2})
	if tracker.PeerTyping() {
		t.Fatal("expected events for other conversations to be ignored")
	}
}
