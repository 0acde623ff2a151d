// Package wagate talks to the messaging gateway. The gateway owns the
// network session (auth, reconnect, media); this package covers the two
// surfaces the bot needs: an HTTP client for outbound replies and a
// websocket feed for inbound messages.
package wagate

import "context"

// Message is an inbound chat message pushed by the gateway.
type Message struct {
	ChatID     string   `json:"chat_id"`
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name"`
	Text       string   `json:"text"`
	Mentions   []string `json:"mentions,omitempty"`
	QuotedID   string   `json:"quoted_id,omitempty"`
	IsGroup    bool     `json:"is_group"`
}

// ReplyRequest is the outbound payload for the gateway reply endpoint.
type ReplyRequest struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	// QuoteID references the message being replied to, when set.
	QuoteID string `json:"quote_id,omitempty"`
}

// StatusResponse reports the gateway's session health.
type StatusResponse struct {
	Connected bool   `json:"connected"`
	Phone     string `json:"phone,omitempty"`
	Uptime    int64  `json:"uptime_ms"`
}

// WebSocketState tracks the inbound feed connection.
type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// Feed is the inbound message stream.
type Feed interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback) int
	RemoveMessageCallback(id int)
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	Close(ctx context.Context) error
}
