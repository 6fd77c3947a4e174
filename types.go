package chatflow

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error returned by the ChatFlow API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Result is the generic API response envelope.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the response error, or a generic one when the server sent none.
func (r *Result) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return &APIError{Message: "request was not successful"}
}

// ============================================================================
// Auth Types
// ============================================================================

type SignUpOptions struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// SessionData is returned by signup/signin: the access token plus the
// authenticated user.
type SessionData struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ============================================================================
// User Types
// ============================================================================

// User identifies a ChatFlow account. ID is the stable identifier used for
// message direction resolution; names are display-only.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`

	// ConversationID is set on receiver records nested in conversation
	// summaries: the direct conversation already open with this user.
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// DisplayName returns "First Last", trimmed.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// PaginationInfo describes a paginated listing.
type PaginationInfo struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// HasNext reports whether a further page exists.
func (p PaginationInfo) HasNext() bool {
	return p.CurrentPage < p.TotalPages
}

// UserPage is one page of the user listing.
type UserPage struct {
	Records        []User         `json:"records"`
	PaginationInfo PaginationInfo `json:"pagination_info"`
}

// ============================================================================
// Conversation Types
// ============================================================================

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID          int64          `json:"id"`
	IsGroup     bool           `json:"is_group"`
	Receiver    *User          `json:"receiver,omitempty"`
	LastMessage *MessageRecord `json:"last_message,omitempty"`
}

// ============================================================================
// Message Types
// ============================================================================

// MessageRecord is a persisted message as the REST API returns it.
type MessageRecord struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversation_id,omitempty"`
	Content         string    `json:"content"`
	SenderID        int64     `json:"sender_id"`
	SenderFirstName string    `json:"sender_first_name,omitempty"`
	SenderLastName  string    `json:"sender_last_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// MessagePage is one page of a conversation's history.
type MessagePage struct {
	Records        []MessageRecord `json:"records"`
	PaginationInfo PaginationInfo  `json:"pagination_info"`
}
