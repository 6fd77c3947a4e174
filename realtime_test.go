package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDispatcher(t *testing.T) {
	t.Run("typed dispatch in registration order", func(t *testing.T) {
		sock := NewSocket(&SocketConfig{})
		var got []string
		sock.OnMessageNew(func(p NewMessagePayload) { got = append(got, "first:"+p.MessageID) })
		sock.OnMessageNew(func(p NewMessagePayload) { got = append(got, "second:"+p.MessageID) })

		env, err := NewEnvelope(EventMessageNew, NewMessagePayload{MessageID: "5", From: 9})
		if err != nil {
			t.Fatal(err)
		}
		sock.dispatcher.dispatch(env)

		if len(got) != 2 || got[0] != "first:5" || got[1] != "second:5" {
			t.Fatalf("unexpected dispatch order %v", got)
		}
	})

	t.Run("generic handler receives raw payload", func(t *testing.T) {
		sock := NewSocket(&SocketConfig{})
		var raw json.RawMessage
		sock.On(EventReadAck, func(eventType string, payload json.RawMessage) {
			if eventType != EventReadAck {
				t.Errorf("unexpected type %q", eventType)
			}
			raw = payload
		})

		env, _ := NewEnvelope(EventReadAck, ReadAckPayload{MessageID: "8"})
		sock.dispatcher.dispatch(env)

		var p ReadAckPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.MessageID != "8" {
			t.Fatalf("unexpected raw payload %s (%v)", raw, err)
		}
	})

	t.Run("malformed payload is discarded", func(t *testing.T) {
		sock := NewSocket(&SocketConfig{})
		called := false
		sock.OnMessageAck(func(AckPayload) { called = true })

		sock.dispatcher.dispatch(Envelope{Type: EventMessageAck, Payload: json.RawMessage(`{`)})
		if called {
			t.Fatal("handler must not run on malformed payload")
		}
	})

	t.Run("unknown type reaches only generic handlers", func(t *testing.T) {
		sock := NewSocket(&SocketConfig{})
		called := false
		sock.On("conversation:created", func(string, json.RawMessage) { called = true })

		sock.dispatcher.dispatch(Envelope{Type: "conversation:created", Payload: json.RawMessage(`{}`)})
		if !called {
			t.Fatal("generic handler not called for unknown type")
		}
	})
}

func TestReconnectorBackoff(t *testing.T) {
	config := &SocketConfig{ReconnectBaseDelay: 100 * time.Millisecond, ReconnectMaxDelay: time.Second, MaxReconnectAttempts: 5}
	config.defaults()

	t.Run("delays grow and stay bounded", func(t *testing.T) {
		r := newReconnector(config)
		prev := time.Duration(0)
		for i := 0; i < 8; i++ {
			d := r.nextDelay()
			if d > config.ReconnectMaxDelay {
				t.Fatalf("attempt %d: delay %v exceeds max", i, d)
			}
			if d < prev && d != config.ReconnectMaxDelay {
				t.Fatalf("attempt %d: delay %v shrank below %v before hitting the cap", i, d, prev)
			}
			prev = d
		}
		if prev != config.ReconnectMaxDelay {
			t.Fatalf("expected final delay pinned at max, got %v", prev)
		}
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		r := newReconnector(config)
		for i := 0; i < 5; i++ {
			if !r.shouldReconnect() {
				t.Fatalf("expected attempt %d allowed", i)
			}
			r.nextDelay()
		}
		if r.shouldReconnect() {
			t.Fatal("expected reconnects exhausted after max attempts")
		}
	})

	t.Run("stable connection resets the attempt counter", func(t *testing.T) {
		r := newReconnector(config)
		for i := 0; i < 4; i++ {
			r.nextDelay()
		}
		r.connectedAt = time.Now().Add(-61 * time.Second)

		d := r.nextDelay()
		if d >= 2*config.ReconnectBaseDelay {
			t.Fatalf("expected first-attempt delay after reset, got %v", d)
		}
	})

	t.Run("zero max attempts means unbounded", func(t *testing.T) {
		r := newReconnector(&SocketConfig{ReconnectBaseDelay: time.Millisecond, ReconnectMaxDelay: time.Millisecond})
		for i := 0; i < 100; i++ {
			r.nextDelay()
		}
		if !r.shouldReconnect() {
			t.Fatal("expected unbounded reconnects")
		}
	})
}

func TestSocketEmitWhenDisconnected(t *testing.T) {
	sock := NewSocket(&SocketConfig{})
	err := sock.EmitEvent(context.Background(), EventTypingStart, TypingPayload{From: 7})
	if !errors.Is(err, ErrSocketClosed) {
		t.Fatalf("expected ErrSocketClosed, got %v", err)
	}
	if sock.State() != StateDisconnected {
		t.Fatalf("expected disconnected state, got %s", sock.State())
	}
}

func TestEnvelopeWireFormat(t *testing.T) {
	env, err := NewEnvelope(EventMessageSend, SendPayload{
		TempID:         "tmp-1",
		ConversationID: 3,
		ReceiverID:     9,
		Content:        "hi",
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			TempID         string `json:"temp_id"`
			ConversationID int64  `json:"conversationId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != EventMessageSend {
		t.Fatalf("unexpected type tag %q", decoded.Type)
	}
	if decoded.Payload.TempID != "tmp-1" || decoded.Payload.ConversationID != 3 {
		t.Fatalf("unexpected payload %+v", decoded.Payload)
	}
}
