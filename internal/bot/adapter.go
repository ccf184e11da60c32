// Package bot implements Switchboard's message dispatch core: command
// routing, permission gating, inference calls, and paginated delivery.
package bot

import (
	"context"
	"time"

	"switchboard/internal/perm"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management and message
// sending/receiving for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Message, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg Outbound) error

	// History retrieves recent messages from a channel, newest first.
	History(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Message represents a message received from the chat platform, with the
// role and ownership facts the permission engine needs already resolved.
type Message struct {
	Platform    string     // e.g. "discord", "slack"
	CommunityID string     // server/guild identifier; the configuration scope
	ChannelID   string     // platform-specific channel identifier
	MessageID   string     // platform-specific message identifier
	Actor       perm.Actor // author identity and role facts
	Text        string     // raw message text
	Timestamp   time.Time
}

// Outbound represents a message to be sent to the chat platform.
type Outbound struct {
	CommunityID string
	ChannelID   string
	ReplyTo     string // message ID to reply to; empty for a plain send
	Text        string
}

// HistoryMessage is a single message from a channel history fetch.
type HistoryMessage struct {
	ID        string
	UserName  string
	Text      string
	Timestamp time.Time
}

// Role is a community role known to the platform.
type Role struct {
	ID   string
	Name string
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering and
// mention parsing.
type BotUserIDer interface {
	BotUserID() string
}

// RoleDirectory is an optional interface for platforms with named roles.
// The role-permission commands need it to resolve names to IDs.
type RoleDirectory interface {
	Roles(ctx context.Context, communityID string) ([]Role, error)
}

// MessageFetcher is an optional interface for platforms that can fetch a
// single message by ID. The reference command needs it.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*HistoryMessage, error)
}

// Renamer is an optional interface for platforms that support a
// per-community bot display name.
type Renamer interface {
	SetDisplayName(ctx context.Context, communityID, name string) error
}

// Typer is an optional interface for platforms with a typing indicator.
// Best-effort; failures are ignored.
type Typer interface {
	Typing(ctx context.Context, channelID string)
}

// InteractivePager is an optional interface for platforms that can attach
// previous/next navigation controls to a multi-page response. Adapters
// without it get pages delivered as sequential messages.
type InteractivePager interface {
	SendPages(ctx context.Context, msg Outbound, session *PageSession) error
}
