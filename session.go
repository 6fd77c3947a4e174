package chatflow

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// DefaultPaginationDelay is the debounce window before the oldest-loaded
// boundary triggers the next history page.
const DefaultPaginationDelay = 500 * time.Millisecond

// pendingAckCap bounds the buffer of acks whose message has not been merged
// yet. Overflow evicts the oldest entry, degrading to a dropped ack.
const pendingAckCap = 64

// MessageAPI is the REST surface the session depends on: history pages and
// message persistence. *MessagesClient is the production implementation.
type MessageAPI interface {
	List(ctx context.Context, conversationID int64, page, pageSize int) (*MessagePage, error)
	Send(ctx context.Context, conversationID int64, content string) (*MessageRecord, error)
}

// Viewport is the embedder's scroll surface. The session uses it to keep the
// visually-anchored message fixed across older-page prepends and to jump to
// the bottom on sends and conversation switches. A nil viewport is tolerated
// for headless use.
type Viewport interface {
	// ContentHeight is the total scrollable height of the rendered list.
	ContentHeight() int
	// ScrollOffset is the current scroll position from the top.
	ScrollOffset() int
	SetScrollOffset(offset int)
	// ScrollToBottom jumps to the newest message; instant skips animation.
	ScrollToBottom(instant bool)
}

type nopViewport struct{}

func (nopViewport) ContentHeight() int  { return 0 }
func (nopViewport) ScrollOffset() int   { return 0 }
func (nopViewport) SetScrollOffset(int) {}
func (nopViewport) ScrollToBottom(bool) {}

// SessionOptions tunes a session. Zero values pick the defaults.
type SessionOptions struct {
	PageSize        int
	PaginationDelay time.Duration
	TypingStopDelay time.Duration
}

// ============================================================================
// Pending acks
// ============================================================================

// pendingAcks buffers status acks that arrived before their message (history
// lag or ordering race). Bounded FIFO; duplicate ids keep the higher status.
type pendingAcks struct {
	status map[string]Status
	fifo   []string
}

func newPendingAcks() *pendingAcks {
	return &pendingAcks{status: make(map[string]Status)}
}

func (p *pendingAcks) add(id string, st Status) {
	if prev, ok := p.status[id]; ok {
		if st > prev {
			p.status[id] = st
		}
		return
	}
	if len(p.fifo) >= pendingAckCap {
		oldest := p.fifo[0]
		p.fifo = p.fifo[1:]
		delete(p.status, oldest)
	}
	p.fifo = append(p.fifo, id)
	p.status[id] = st
}

func (p *pendingAcks) take(id string) (Status, bool) {
	st, ok := p.status[id]
	if !ok {
		return 0, false
	}
	delete(p.status, id)
	for i, k := range p.fifo {
		if k == id {
			p.fifo = append(p.fifo[:i], p.fifo[i+1:]...)
			break
		}
	}
	return st, true
}

// ============================================================================
// Session
// ============================================================================

// Session is the synchronization core for one open conversation: it merges
// REST history pages, optimistic local sends, and live socket events into one
// consistent message list keyed by id, manages status transitions, and drives
// scroll-preserving incremental loading.
//
// A multi-conversation client runs one session per open conversation;
// switching means closing the old session and opening a new one. All handler
// and accessor methods are safe for concurrent use.
type Session struct {
	api            MessageAPI
	emitter        EventEmitter
	self           User
	peer           User
	conversationID int64
	viewport       Viewport
	typing         *TypingTracker
	pager          *Pager
	loadDebounce   *debouncer

	mu          sync.Mutex
	byID        map[string]*Message
	order       []string
	pending     *pendingAcks
	atBottom    bool
	newMsgCount int
	closed      bool
}

// NewSession creates a session for a direct conversation with peer. Inbound
// events are applied only when their origin matches this peer.
func NewSession(api MessageAPI, emitter EventEmitter, self, peer User, conversationID int64, viewport Viewport, opts *SessionOptions) *Session {
	var o SessionOptions
	if opts != nil {
		o = *opts
	}
	if o.PaginationDelay <= 0 {
		o.PaginationDelay = DefaultPaginationDelay
	}
	if viewport == nil {
		viewport = nopViewport{}
	}
	return &Session{
		api:            api,
		emitter:        emitter,
		self:           self,
		peer:           peer,
		conversationID: conversationID,
		viewport:       viewport,
		typing:         NewTypingTracker(emitter, self.ID, peer.ID, conversationID, o.TypingStopDelay),
		pager:          NewPager(api, conversationID, o.PageSize),
		loadDebounce:   newDebouncer(o.PaginationDelay),
		byID:           make(map[string]*Message),
		pending:        newPendingAcks(),
		atBottom:       true,
	}
}

// Bind subscribes the session (and its typing tracker) to the socket's event
// stream. Both consumers share one channel and filter by type and peer.
func (s *Session) Bind(sock *Socket) {
	sock.OnMessageNew(s.HandleMessageNew)
	sock.OnMessageAck(s.HandleMessageAck)
	sock.OnReadAck(s.HandleReadAck)
	sock.OnTypingStart(s.typing.HandleTypingStart)
	sock.OnTypingStop(s.typing.HandleTypingStop)
}

// ConversationID returns the conversation this session synchronizes.
func (s *Session) ConversationID() int64 { return s.conversationID }

// Peer returns the other party.
func (s *Session) Peer() User { return s.peer }

// Typing returns the session's typing tracker.
func (s *Session) Typing() *TypingTracker { return s.typing }

// Open loads the initial history page and scrolls instantly to the bottom —
// the non-animated first render of a freshly opened conversation.
func (s *Session) Open(ctx context.Context) error {
	records, err := s.pager.FetchNext(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mergeRecordsLocked(records, false)
	s.atBottom = true
	s.newMsgCount = 0
	reads := s.collectUnseenLocked()
	s.mu.Unlock()

	s.viewport.ScrollToBottom(true)
	s.emitReads(reads)
	return nil
}

// Close discards the session's list and pagination cursor. In-flight fetches
// may still resolve but their results are dropped; further events are
// ignored. The previous conversation never contaminates the next one.
func (s *Session) Close() {
	s.loadDebounce.Cancel()
	s.typing.StopTyping(context.Background())

	s.mu.Lock()
	s.closed = true
	s.byID = make(map[string]*Message)
	s.order = nil
	s.pending = newPendingAcks()
	s.newMsgCount = 0
	s.mu.Unlock()
}

// ============================================================================
// Outbound
// ============================================================================

// Send inserts an optimistic message immediately, announces it on the socket,
// then persists it over REST. The server-assigned id replaces the temporary
// one in place; a failed persistence request marks the message failed and is
// never auto-retried — a user retry is a new message with a new id.
func (s *Session) Send(ctx context.Context, content string) (*Message, error) {
	tempID := newTempID()
	msg := Message{
		ID:        tempID,
		Content:   content,
		Timestamp: time.Now(),
		Direction: Outbound,
		Status:    StatusSending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	s.insertLocked(msg)
	s.atBottom = true
	s.newMsgCount = 0
	s.mu.Unlock()

	s.viewport.ScrollToBottom(false)
	s.typing.StopTyping(ctx)

	// Fire-and-forget announce; a missing socket degrades to REST-only.
	s.emitter.EmitEvent(ctx, EventMessageSend, SendPayload{
		TempID:         tempID,
		ConversationID: s.conversationID,
		ReceiverID:     s.peer.ID,
		Content:        content,
	})

	rec, err := s.api.Send(ctx, s.conversationID, content)
	if err != nil {
		s.mu.Lock()
		if m, ok := s.byID[tempID]; ok {
			m.advance(StatusFailed)
		}
		s.mu.Unlock()
		return s.Message(tempID), err
	}

	serverID := strconv.FormatInt(rec.ID, 10)
	s.mu.Lock()
	id := s.correlateLocked(tempID, serverID)
	if m, ok := s.byID[id]; ok {
		m.advance(StatusSent)
		if st, buffered := s.pending.take(id); buffered {
			m.advance(st)
		}
	}
	s.mu.Unlock()

	return s.Message(serverID), nil
}

// SendFilePlaceholder inserts an outbound placeholder message for an attached
// file ("📎 name"). The returned id can be passed to Remove if the upload is
// canceled.
func (s *Session) SendFilePlaceholder(fileName string) string {
	msg := Message{
		ID:        newTempID(),
		Content:   "📎 " + fileName,
		Timestamp: time.Now(),
		Direction: Outbound,
		Status:    StatusSent,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ""
	}
	s.insertLocked(msg)
	s.mu.Unlock()

	s.viewport.ScrollToBottom(false)
	return msg.ID
}

// Remove deletes a message from the list, e.g. a canceled upload placeholder.
// This is the only individual removal the session performs.
func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// InputChanged forwards the message-input text to the typing tracker.
func (s *Session) InputChanged(ctx context.Context, text string) {
	s.typing.InputChanged(ctx, text)
}

// ============================================================================
// Inbound events
// ============================================================================

// HandleMessageNew applies an inbound live message. Events whose origin does
// not match the open peer are ignored, not queued. The message enters in
// delivered — it reached this client — and the standing mark-as-read pass
// promotes it to seen while the view is open.
func (s *Session) HandleMessageNew(p NewMessagePayload) {
	s.mu.Lock()
	if s.closed || p.From != s.peer.ID {
		s.mu.Unlock()
		return
	}

	msg := MessageFromEvent(p, time.Now())
	if _, exists := s.byID[msg.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.insertLocked(msg)
	if st, buffered := s.pending.take(msg.ID); buffered {
		s.byID[msg.ID].advance(st)
	}

	scroll := s.atBottom
	if !s.atBottom {
		s.newMsgCount++
	}
	reads := s.collectUnseenLocked()
	s.mu.Unlock()

	if scroll {
		s.viewport.ScrollToBottom(false)
	}
	s.emitReads(reads)
}

// HandleMessageAck applies a delivery acknowledgement. Correlation prefers
// the authoritative id; the temp id is used when the ack supplies one and the
// optimistic entry has not been renamed yet. Acks for unknown ids are
// buffered (bounded) until the message appears.
func (s *Session) HandleMessageAck(p AckPayload) {
	if p.MessageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if m, ok := s.byID[p.MessageID]; ok {
		m.advance(StatusDelivered)
		return
	}
	if p.TempID != "" {
		if _, ok := s.byID[p.TempID]; ok {
			id := s.correlateLocked(p.TempID, p.MessageID)
			s.byID[id].advance(StatusDelivered)
			return
		}
	}
	s.pending.add(p.MessageID, StatusDelivered)
}

// HandleReadAck applies a read acknowledgement for an outbound message: the
// peer saw it.
func (s *Session) HandleReadAck(p ReadAckPayload) {
	if p.MessageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if m, ok := s.byID[p.MessageID]; ok {
		m.advance(StatusSeen)
		return
	}
	s.pending.add(p.MessageID, StatusSeen)
}

// ============================================================================
// Pagination
// ============================================================================

// TopVisible signals that the oldest-loaded message entered the viewport.
// After the debounce window the next older page is fetched; call TopHidden if
// the user scrolls away to cancel the pending fetch.
func (s *Session) TopVisible(ctx context.Context) {
	if !s.pager.HasNext() {
		return
	}
	s.loadDebounce.Trigger(func() {
		s.LoadOlder(ctx)
	})
}

// TopHidden cancels a pending pagination trigger.
func (s *Session) TopHidden() {
	s.loadDebounce.Cancel()
}

// LoadOlder fetches the next older history page and merges it in front of the
// current list, preserving relative order and keeping the visually-anchored
// message fixed by restoring the scroll offset by the content-height delta.
// Errors are retryable; already-merged pages are untouched.
func (s *Session) LoadOlder(ctx context.Context) error {
	if !s.pager.HasNext() {
		return ErrNoMorePages
	}

	prevHeight := s.viewport.ContentHeight()

	records, err := s.pager.FetchNext(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// The fetch may resolve after the conversation was switched away from;
	// its records belong to a discarded list.
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mergeRecordsLocked(records, true)
	reads := s.collectUnseenLocked()
	s.mu.Unlock()

	delta := s.viewport.ContentHeight() - prevHeight
	if delta > 0 {
		s.viewport.SetScrollOffset(s.viewport.ScrollOffset() + delta)
	}
	s.emitReads(reads)
	return nil
}

// HasOlder reports whether unfetched history remains.
func (s *Session) HasOlder() bool {
	return s.pager.HasNext()
}

// ============================================================================
// Views
// ============================================================================

// Messages returns a copy of the current list in list order: history pages in
// front, live and optimistic messages appended.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Message returns one message by id, or nil.
func (s *Session) Message(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[id]; ok {
		out := *m
		return &out
	}
	return nil
}

// Groups returns the current list bucketed into day groups for display.
func (s *Session) Groups(now time.Time) []DayGroup {
	return GroupByDay(s.Messages(), now)
}

// Len returns the number of messages in the list.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SetAtBottom reports whether the viewer is scrolled to the bottom. Reaching
// the bottom clears the new-message counter.
func (s *Session) SetAtBottom(atBottom bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atBottom = atBottom
	if atBottom {
		s.newMsgCount = 0
	}
}

// AtBottom reports the viewer-at-bottom flag.
func (s *Session) AtBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atBottom
}

// NewMessageCount returns how many messages arrived while scrolled up.
func (s *Session) NewMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newMsgCount
}

// PeerTyping reports whether the peer is currently typing.
func (s *Session) PeerTyping() bool {
	return s.typing.PeerTyping()
}

// ============================================================================
// Internals
// ============================================================================

// insertLocked appends a message. Caller holds s.mu and has checked for id
// collisions where required.
func (s *Session) insertLocked(msg Message) {
	if _, exists := s.byID[msg.ID]; exists {
		return
	}
	m := msg
	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
}

// mergeRecordsLocked merges a history page. prepend=true puts the page's
// records in front of the list preserving their relative order; duplicates
// (already merged or already live) are skipped, but a buffered ack for a
// record is still applied.
func (s *Session) mergeRecordsLocked(records []MessageRecord, prepend bool) {
	var fresh []string
	for _, rec := range records {
		msg := MessageFromRecord(rec, s.self.ID)
		if existing, ok := s.byID[msg.ID]; ok {
			existing.advance(msg.Status)
			continue
		}
		m := msg
		if st, buffered := s.pending.take(m.ID); buffered {
			m.advance(st)
		}
		s.byID[m.ID] = &m
		fresh = append(fresh, m.ID)
	}
	if len(fresh) == 0 {
		return
	}
	if prepend {
		s.order = append(fresh, s.order...)
	} else {
		s.order = append(s.order, fresh...)
	}
}

// correlateLocked renames a temporary id to the authoritative one without
// changing list position. If the authoritative id already exists (the live
// echo won the race) the optimistic entry is folded into it.
func (s *Session) correlateLocked(tempID, serverID string) string {
	if tempID == serverID {
		return serverID
	}
	temp, ok := s.byID[tempID]
	if !ok {
		return serverID
	}

	if existing, dup := s.byID[serverID]; dup {
		existing.advance(temp.Status)
		delete(s.byID, tempID)
		for i, k := range s.order {
			if k == tempID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return serverID
	}

	temp.ID = serverID
	s.byID[serverID] = temp
	delete(s.byID, tempID)
	for i, k := range s.order {
		if k == tempID {
			s.order[i] = serverID
			break
		}
	}
	return serverID
}

// collectUnseenLocked is the standing mark-as-read pass: every inbound
// message not yet seen is marked seen locally and its id collected for
// exactly one read emission. Re-running on an unchanged list collects
// nothing, which keeps the side effect idempotent.
func (s *Session) collectUnseenLocked() []string {
	var ids []string
	for _, id := range s.order {
		m := s.byID[id]
		if m.Direction == Inbound && m.Status != StatusSeen {
			m.Status = StatusSeen
			ids = append(ids, id)
		}
	}
	return ids
}

// emitReads sends one message:read per newly seen id, batched per evaluation.
func (s *Session) emitReads(ids []string) {
	for _, id := range ids {
		s.emitter.EmitEvent(context.Background(), EventMessageRead, ReadPayload{
			MessageID:  id,
			ReceiverID: s.peer.ID,
		})
	}
}
