package chatflow

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Status lifecycle
// ============================================================================

// Status is the ordered delivery lifecycle of a message:
// sending → sent → delivered → seen, with failed as a terminal branch for
// outbound sends whose persistence request errored.
type Status int

const (
	StatusSending Status = iota
	StatusSent
	StatusDelivered
	StatusSeen
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Direction records whether the local user authored the message.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// ============================================================================
// Canonical message
// ============================================================================

// Message is the canonical in-memory message record every producer (history
// pages, optimistic sends, live events) normalizes into.
type Message struct {
	// ID is unique within a conversation's list. Optimistic sends carry a
	// temporary id until the server assigns the authoritative one.
	ID          string
	Content     string
	Timestamp   time.Time
	Direction   Direction
	Status      Status
	SenderLabel string
}

// advance moves the message status forward, never backward. Failed is only
// reachable from sending/sent. Returns true when the status changed.
func (m *Message) advance(to Status) bool {
	if to == m.Status || m.Status == StatusFailed || m.Status == StatusSeen {
		return false
	}
	if to == StatusFailed {
		if m.Status == StatusSending || m.Status == StatusSent {
			m.Status = StatusFailed
			return true
		}
		return false
	}
	if to > m.Status {
		m.Status = to
		return true
	}
	return false
}

// newTempID returns a fresh temporary id for an optimistic message.
func newTempID() string {
	return "tmp-" + uuid.NewString()
}

// ============================================================================
// Normalizers
// ============================================================================

// MessageFromRecord maps a persisted history record into the canonical form.
// Direction is resolved by exact sender-id equality against the local user.
// Historical records are already acknowledged by the transport, so they land
// in seen.
func MessageFromRecord(rec MessageRecord, localUserID int64) Message {
	msg := Message{
		ID:        strconv.FormatInt(rec.ID, 10),
		Content:   rec.Content,
		Timestamp: rec.CreatedAt,
		Status:    StatusSeen,
	}
	if rec.SenderID == localUserID {
		msg.Direction = Outbound
	} else {
		msg.Direction = Inbound
		msg.SenderLabel = User{FirstName: rec.SenderFirstName, LastName: rec.SenderLastName}.DisplayName()
	}
	return msg
}

// MessageFromEvent maps a live inbound message event into the canonical form.
// It reached the client, hence it is at least delivered. When the event does
// not carry a server id a generated one is used so later acks can still
// correlate by id once the server echoes it.
func MessageFromEvent(p NewMessagePayload, now time.Time) Message {
	id := p.MessageID
	if id == "" {
		id = newTempID()
	}
	ts := p.CreatedAt
	if ts.IsZero() {
		ts = now
	}
	return Message{
		ID:        id,
		Content:   p.Content,
		Timestamp: ts,
		Direction: Inbound,
		Status:    StatusDelivered,
	}
}
