// Package slack implements the switchboard Adapter for Slack using Socket
// Mode. Slack has no role system, so role-based permission grants are not
// available; owner and admin facts come from the workspace user record.
// Pagination controls are not implemented either; multi-page responses go
// out as sequential messages.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"switchboard/internal/bot"
	"switchboard/internal/perm"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetConversationHistory(params *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements bot.Adapter for Slack Socket Mode. Communities map
// to workspaces.
type Adapter struct {
	client    slackClient
	socket    socketClient
	appToken  string
	botToken  string
	botUserID string

	mu         sync.Mutex
	connected  bool
	closed     bool
	inbound    chan bot.Message
	cancelFunc context.CancelFunc
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string // xoxb-... Slack bot token
	// For testing: inject mock clients instead of the real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.Client == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	a := &Adapter{
		appToken: opts.AppToken,
		botToken: opts.BotToken,
		inbound:  make(chan bot.Message, 100),
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Socket != nil {
		a.socket = opts.Socket
	}
	return a, nil
}

// Connect establishes the Socket Mode WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	log.Printf("slack: connected as %s (ID: %s)", auth.User, auth.UserID)

	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.Message, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelFunc = cancel
	a.mu.Unlock()

	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// Send delivers a message to a Slack channel. ReplyTo threads the reply
// under the triggering message.
func (a *Adapter) Send(ctx context.Context, msg bot.Outbound) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()
	if msg.ChannelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.ReplyTo != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ReplyTo))
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(msg.ChannelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// History retrieves the most recent messages in a channel, newest first.
func (a *Adapter) History(ctx context.Context, channelID string, limit int) ([]bot.HistoryMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	var resp *slackapi.GetConversationHistoryResponse
	err := retryOnRateLimit(ctx, func() error {
		var apiErr error
		resp, apiErr = a.client.GetConversationHistory(&slackapi.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     limit,
		})
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("slack: conversation history: %w", err)
	}

	var all []bot.HistoryMessage
	for _, m := range resp.Messages {
		all = append(all, bot.HistoryMessage{
			ID:        m.Timestamp,
			UserName:  a.resolveUserName(m.User),
			Text:      m.Text,
			Timestamp: parseSlackTimestamp(m.Timestamp),
		})
	}
	return all, nil
}

// Close shuts down the adapter and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// runWithReconnect runs the Socket Mode client and retries with
// exponential backoff when Run() returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		err := a.socket.Run()
		if err == nil {
			return // clean shutdown
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, maxReconnectAttempts, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", maxReconnectAttempts)
}

// pumpEvents reads Socket Mode events and converts them to bot.Messages.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(eventsAPIEvent)

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks. App mentions arrive as
// plain message events too, so only the message event is handled; the
// router detects the mention from the text.
func (a *Adapter) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	a.handleMessage(event.TeamID, ev)
}

// handleMessage converts a Slack message event to a bot.Message.
func (a *Adapter) handleMessage(teamID string, ev *slackevents.MessageEvent) {
	if ev.User == a.botUserID {
		return
	}
	// Skip bot messages and message subtypes (edits, deletes, joins).
	if ev.BotID != "" || ev.SubType != "" {
		return
	}

	a.inbound <- bot.Message{
		Platform:    "slack",
		CommunityID: teamID,
		ChannelID:   ev.Channel,
		MessageID:   ev.TimeStamp,
		Actor:       a.resolveActor(ev.User),
		Text:        ev.Text,
		Timestamp:   parseSlackTimestamp(ev.TimeStamp),
	}
}

// resolveActor builds the permission facts for a Slack user. Workspace
// owners and admins map to the owner and admin flags; Slack has no role
// grants.
func (a *Adapter) resolveActor(userID string) perm.Actor {
	actor := perm.Actor{ID: userID, Name: userID}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		log.Printf("slack: user info %s: %v", userID, err)
		return actor
	}
	if user.Profile.DisplayName != "" {
		actor.Name = user.Profile.DisplayName
	} else if user.RealName != "" {
		actor.Name = user.RealName
	}
	actor.IsOwner = user.IsOwner || user.IsPrimaryOwner
	actor.IsAdmin = user.IsAdmin
	return actor
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors. It respects context cancellation and the RetryAfter duration
// from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// parseSlackTimestamp converts a Slack timestamp (e.g. "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	if len(parts) == 0 {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
