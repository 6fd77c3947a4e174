package chatflow

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultTypingStopDelay is the idle window after which typing:stop is sent.
const DefaultTypingStopDelay = 500 * time.Millisecond

// EventEmitter sends typed envelopes to the live connection. *Socket is the
// production implementation; tests substitute a recorder.
type EventEmitter interface {
	EmitEvent(ctx context.Context, eventType string, payload interface{}) error
}

// ============================================================================
// Debouncer
// ============================================================================

// debouncer is a two-state (idle/active) timer: Trigger arms or re-arms the
// window, Cancel returns to idle without firing. The callback runs at most
// once per armed window, off the caller's goroutine.
type debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// Trigger arms the timer, resetting the window if it is already active.
func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel disarms the timer without firing.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Active reports whether a window is armed.
func (d *debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// ============================================================================
// Typing tracker
// ============================================================================

// TypingTracker derives the "peer is typing" signal from the event stream and
// emits the local user's typing:start/stop edges: start once per burst of
// keystrokes, stop after an idle window or immediately when the input
// empties. It is independent of message storage.
type TypingTracker struct {
	emitter        EventEmitter
	selfID         int64
	peerID         int64
	conversationID int64

	mu         sync.Mutex
	active     bool
	stop       *debouncer
	peerTyping bool
}

// NewTypingTracker creates a tracker for one open conversation. stopDelay
// defaults to DefaultTypingStopDelay when zero.
func NewTypingTracker(emitter EventEmitter, selfID, peerID, conversationID int64, stopDelay time.Duration) *TypingTracker {
	if stopDelay <= 0 {
		stopDelay = DefaultTypingStopDelay
	}
	return &TypingTracker{
		emitter:        emitter,
		selfID:         selfID,
		peerID:         peerID,
		conversationID: conversationID,
		stop:           newDebouncer(stopDelay),
	}
}

func (t *TypingTracker) payload() TypingPayload {
	return TypingPayload{
		ReceiverID:     t.peerID,
		From:           t.selfID,
		ConversationID: t.conversationID,
	}
}

// InputChanged reports the current input text. Emits typing:start on the
// first keystroke of a burst and schedules typing:stop for when the burst
// ends; an emptied input stops immediately.
func (t *TypingTracker) InputChanged(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		t.StopTyping(ctx)
		return
	}

	t.mu.Lock()
	wasActive := t.active
	t.active = true
	t.mu.Unlock()

	if !wasActive {
		t.emitter.EmitEvent(ctx, EventTypingStart, t.payload())
	}

	t.stop.Trigger(func() {
		t.StopTyping(context.Background())
	})
}

// StopTyping emits typing:stop if a burst is active and returns to idle.
func (t *TypingTracker) StopTyping(ctx context.Context) {
	t.stop.Cancel()

	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.mu.Unlock()

	if wasActive {
		t.emitter.EmitEvent(ctx, EventTypingStop, t.payload())
	}
}

// HandleTypingStart applies a peer typing:start event. Events for other
// conversations are ignored.
func (t *TypingTracker) HandleTypingStart(p TypingPayload) {
	if p.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	t.peerTyping = true
	t.mu.Unlock()
}

// HandleTypingStop applies a peer typing:stop event.
func (t *TypingTracker) HandleTypingStop(p TypingPayload) {
	if p.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	t.peerTyping = false
	t.mu.Unlock()
}

// PeerTyping reports whether the peer is currently typing.
func (t *TypingTracker) PeerTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerTyping
}
