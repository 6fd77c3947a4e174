// Package chatflow provides the Go client for the ChatFlow direct-messaging
// service.
//
// Covers the REST API (auth, users, conversations, message history) and the
// real-time socket (live messages, delivery/read acks, typing indicators),
// plus the per-conversation Session that keeps both in sync.
//
// Example:
//
//	client := chatflow.NewClient(token)
//
//	// REST
//	convs, _ := client.Conversations.List(ctx)
//	page, _ := client.Messages.List(ctx, convID, 1, 10)
//
//	// Real-time
//	sock, _ := chatflow.ConnectSocket(ctx, token)
//	defer chatflow.DisconnectSocket()
//
//	// Synchronized view of one conversation
//	sess := chatflow.NewSession(client.Messages, sock, me, peer, convID, nil, nil)
//	sess.Open(ctx)
//	sess.Send(ctx, "hello")
package chatflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api-chat-app-io.onrender.com"
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the history page size used when the caller does not
	// pick one.
	DefaultPageSize = 10
)

// ============================================================================
// Client
// ============================================================================

// Client is the ChatFlow REST API client. Endpoint groups are exposed as
// sub-clients: Auth, Users, Conversations, Messages.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	Auth          *AuthClient
	Users         *UsersClient
	Conversations *ConversationsClient
	Messages      *MessagesClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a new ChatFlow client.
// token is optional — pass "" before login, then call SetToken.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Auth = &AuthClient{client: c}
	c.Users = &UsersClient{client: c}
	c.Conversations = &ConversationsClient{client: c}
	c.Messages = &MessagesClient{client: c}
	return c
}

// SetToken sets or updates the access token, e.g. after SignIn.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current access token.
func (c *Client) Token() string {
	return c.token
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func pageQuery(page, pageSize int) map[string]string {
	q := map[string]string{}
	if page > 0 {
		q["page"] = strconv.Itoa(page)
	}
	if pageSize > 0 {
		q["page_size"] = strconv.Itoa(pageSize)
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// ============================================================================
// Auth
// ============================================================================

// AuthClient handles registration and login. The client never inspects or
// refreshes tokens beyond extracting the local user id (see UserIDFromToken).
type AuthClient struct{ client *Client }

func (a *AuthClient) SignUp(ctx context.Context, opts *SignUpOptions) (*SessionData, error) {
	res, err := a.client.do(ctx, "POST", "/auth/signup", opts, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var session SessionData
	if err := res.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*SessionData, error) {
	res, err := a.client.do(ctx, "POST", "/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var session SessionData
	if err := res.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ============================================================================
// Users
// ============================================================================

// UsersClient lists registered users for starting new conversations.
type UsersClient struct{ client *Client }

func (u *UsersClient) List(ctx context.Context, page, pageSize int) (*UserPage, error) {
	res, err := u.client.do(ctx, "GET", "/users", nil, pageQuery(page, pageSize))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var users UserPage
	if err := res.Decode(&users); err != nil {
		return nil, err
	}
	return &users, nil
}

// ============================================================================
// Conversations
// ============================================================================

// ConversationsClient handles conversation management.
type ConversationsClient struct{ client *Client }

// List returns the caller's conversation summaries, skipping entries with no
// last message and dropping duplicate conversation ids.
func (cv *ConversationsClient) List(ctx context.Context) ([]ConversationSummary, error) {
	res, err := cv.client.do(ctx, "GET", "/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var raw []ConversationSummary
	if err := res.Decode(&raw); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(raw))
	out := make([]ConversationSummary, 0, len(raw))
	for _, conv := range raw {
		if conv.LastMessage == nil {
			continue
		}
		if seen[conv.ID] {
			continue
		}
		seen[conv.ID] = true
		out = append(out, conv)
	}
	return out, nil
}

// Create starts (or returns) a direct conversation with the given user.
func (cv *ConversationsClient) Create(ctx context.Context, receiverID int64) (*ConversationSummary, error) {
	res, err := cv.client.do(ctx, "POST", "/conversations", map[string]int64{
		"receiver_id": receiverID,
	}, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var conv ConversationSummary
	if err := res.Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ============================================================================
// Messages
// ============================================================================

// MessagesClient handles persisted message history and sends.
type MessagesClient struct{ client *Client }

// List fetches one page of a conversation's history. Pages are numbered from
// 1; HasNext on the returned page reports whether an older page exists.
func (m *MessagesClient) List(ctx context.Context, conversationID int64, page, pageSize int) (*MessagePage, error) {
	q := pageQuery(page, pageSize)
	if q == nil {
		q = map[string]string{}
	}
	q["conversation_id"] = strconv.FormatInt(conversationID, 10)

	res, err := m.client.do(ctx, "GET", "/messages", nil, q)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var msgs MessagePage
	if err := res.Decode(&msgs); err != nil {
		return nil, err
	}
	return &msgs, nil
}

// Send persists a message and returns the stored record carrying the
// server-assigned id.
func (m *MessagesClient) Send(ctx context.Context, conversationID int64, content string) (*MessageRecord, error) {
	res, err := m.client.do(ctx, "POST", "/messages", map[string]interface{}{
		"conversation_id": conversationID,
		"content":         content,
	}, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, res.Err()
	}
	var rec MessageRecord
	if err := res.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
