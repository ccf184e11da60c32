// Package discord implements the switchboard Adapter for Discord using the
// Gateway WebSocket.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"switchboard/internal/bot"
	"switchboard/internal/perm"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// historyPageSize is the number of messages per history API call.
	historyPageSize = 100
)

const notYourPager = "You cannot navigate this message as you didn't request it."

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	Guild(guildID string) (*discordgo.Guild, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageEditComplex(m, options...)
}
func (r *realSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return r.s.ChannelMessages(channelID, limit, beforeID, afterID, aroundID, options...)
}
func (r *realSession) ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessage(channelID, messageID, options...)
}
func (r *realSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	return r.s.ChannelTyping(channelID, options...)
}
func (r *realSession) Guild(guildID string) (*discordgo.Guild, error) {
	if g, err := r.s.State.Guild(guildID); err == nil {
		return g, nil
	}
	return r.s.Guild(guildID)
}
func (r *realSession) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return r.s.GuildRoles(guildID, options...)
}
func (r *realSession) GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error {
	return r.s.GuildMemberNickname(guildID, userID, nickname, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}

// Adapter implements bot.Adapter for Discord via the Gateway WebSocket.
// Communities map to guilds.
type Adapter struct {
	sess     session
	botToken string
	pager    *bot.PagerStore

	mu            sync.Mutex
	botUserID     string
	connected     bool
	closed        bool
	inbound       chan bot.Message
	removeHandler func()
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string
	Pager    *bot.PagerStore // enables pagination buttons
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	a := &Adapter{
		botToken: opts.BotToken,
		pager:    opts.Pager,
		inbound:  make(chan bot.Message, 100),
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Resumed) {
		log.Printf("discord: gateway session resumed")
	})
	if a.pager != nil {
		a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(i)
		})
	}

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Must be called after
// Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.removeHandler = a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	return a.inbound, nil
}

// Send delivers a message to a Discord channel, optionally as a reply.
func (a *Adapter) Send(ctx context.Context, msg bot.Outbound) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()
	if msg.ChannelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	data := &discordgo.MessageSend{Content: msg.Text}
	if msg.ReplyTo != "" {
		data.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyTo,
			ChannelID: msg.ChannelID,
		}
	}
	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(msg.ChannelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// History retrieves the most recent messages in a channel, newest first.
func (a *Adapter) History(ctx context.Context, channelID string, limit int) ([]bot.HistoryMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	pageSize := historyPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	var all []bot.HistoryMessage
	beforeID := ""
	for {
		var msgs []*discordgo.Message
		err := a.retryOnRateLimit(ctx, func() error {
			var apiErr error
			msgs, apiErr = a.sess.ChannelMessages(channelID, pageSize, beforeID, "", "")
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("discord: channel messages: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			if m.Author == nil {
				continue
			}
			all = append(all, bot.HistoryMessage{
				ID:        m.ID,
				UserName:  m.Author.Username,
				Text:      m.Content,
				Timestamp: m.Timestamp,
			})
		}
		if limit > 0 && len(all) >= limit {
			all = all[:limit]
			break
		}
		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < pageSize {
			break
		}
	}
	return all, nil
}

// FetchMessage retrieves a single message by ID.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (*bot.HistoryMessage, error) {
	var msg *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		msg, apiErr = a.sess.ChannelMessage(channelID, messageID)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: fetch message: %w", err)
	}
	userName := ""
	if msg.Author != nil {
		userName = msg.Author.Username
	}
	return &bot.HistoryMessage{
		ID:        msg.ID,
		UserName:  userName,
		Text:      msg.Content,
		Timestamp: msg.Timestamp,
	}, nil
}

// Roles lists a guild's roles.
func (a *Adapter) Roles(ctx context.Context, communityID string) ([]bot.Role, error) {
	var roles []*discordgo.Role
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		roles, apiErr = a.sess.GuildRoles(communityID)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: guild roles: %w", err)
	}
	out := make([]bot.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, bot.Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// SetDisplayName changes the bot's nickname in a guild. An empty name
// resets to the account default.
func (a *Adapter) SetDisplayName(ctx context.Context, communityID, name string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		return a.sess.GuildMemberNickname(communityID, "@me", name)
	})
	if err != nil {
		return fmt.Errorf("discord: set nickname: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in a channel.
func (a *Adapter) Typing(ctx context.Context, channelID string) {
	if err := a.sess.ChannelTyping(channelID); err != nil {
		log.Printf("discord: typing indicator: %v", err)
	}
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.removeHandler != nil {
		a.removeHandler()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used in tests).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

// handleMessage converts a Discord message event into a bot.Message.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	// Direct messages have no community; the bot only serves guilds.
	if m.GuildID == "" {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	actor := perm.Actor{
		ID:   m.Author.ID,
		Name: m.Author.Username,
	}
	if m.Member != nil {
		actor.RoleIDs = m.Member.Roles
	}
	if g, err := a.sess.Guild(m.GuildID); err == nil {
		actor.IsOwner = g.OwnerID == m.Author.ID
		actor.IsAdmin = memberIsAdmin(g.Roles, actor.RoleIDs)
	}

	a.inbound <- bot.Message{
		Platform:    "discord",
		CommunityID: m.GuildID,
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		Actor:       actor,
		Text:        m.Content,
		Timestamp:   m.Timestamp,
	}
}

// memberIsAdmin reports whether any of the member's roles carries the
// Administrator permission.
func memberIsAdmin(guildRoles []*discordgo.Role, memberRoles []string) bool {
	for _, gr := range guildRoles {
		if gr.Permissions&discordgo.PermissionAdministrator == 0 {
			continue
		}
		for _, id := range memberRoles {
			if id == gr.ID {
				return true
			}
		}
	}
	return false
}

// SendPages posts a multi-page response with Previous/Next buttons. The
// controls disable themselves when the session times out.
func (a *Adapter) SendPages(ctx context.Context, out bot.Outbound, session *bot.PageSession) error {
	if a.pager == nil {
		return fmt.Errorf("discord: no pager configured")
	}
	view := session.View()
	data := &discordgo.MessageSend{
		Content:    view.Content,
		Components: pagerComponents(session.ID, view, false),
	}
	if out.ReplyTo != "" {
		data.Reference = &discordgo.MessageReference{
			MessageID: out.ReplyTo,
			ChannelID: out.ChannelID,
		}
	}

	var msg *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var sendErr error
		msg, sendErr = a.sess.ChannelMessageSendComplex(out.ChannelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send pages: %w", err)
	}

	channelID, messageID, sessionID := out.ChannelID, msg.ID, session.ID
	time.AfterFunc(a.pager.Timeout(), func() {
		a.pager.Remove(sessionID)
		disabled := pagerComponents(sessionID, session.View(), true)
		_, editErr := a.sess.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    channelID,
			ID:         messageID,
			Components: &disabled,
		})
		if editErr != nil {
			log.Printf("discord: disable pager controls: %v", editErr)
		}
	})
	return nil
}

// handleInteraction processes pagination button clicks.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	customID := i.MessageComponentData().CustomID
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "pager" {
		return
	}
	sessionID := parts[1]
	delta := 0
	switch parts[2] {
	case "prev":
		delta = -1
	case "next":
		delta = 1
	default:
		return
	}

	actorID := ""
	if i.Member != nil && i.Member.User != nil {
		actorID = i.Member.User.ID
	} else if i.User != nil {
		actorID = i.User.ID
	}

	view, err := a.pager.Flip(sessionID, actorID, delta)
	if err != nil {
		text := "This paginated message has expired."
		if errors.Is(err, bot.ErrNotYours) {
			text = notYourPager
		}
		a.respondEphemeral(i, text)
		return
	}

	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    view.Content,
			Components: pagerComponents(sessionID, view, false),
		},
	}
	if err := a.sess.InteractionRespond(i.Interaction, resp); err != nil {
		log.Printf("discord: pager update: %v", err)
	}
}

func (a *Adapter) respondEphemeral(i *discordgo.InteractionCreate, text string) {
	err := a.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("discord: ephemeral response: %v", err)
	}
}

// pagerComponents builds the Previous / page counter / Next button row.
func pagerComponents(sessionID string, view bot.PageView, disableAll bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Previous",
					Style:    discordgo.SecondaryButton,
					CustomID: "pager:" + sessionID + ":prev",
					Disabled: disableAll || view.Index == 0,
				},
				discordgo.Button{
					Label:    view.Label(),
					Style:    discordgo.SecondaryButton,
					CustomID: "pager:" + sessionID + ":page",
					Disabled: true,
				},
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.SecondaryButton,
					CustomID: "pager:" + sessionID + ":next",
					Disabled: disableAll || view.Index == view.Total-1,
				},
			},
		},
	}
}

// retryOnRateLimit calls fn and retries with exponential backoff on
// Discord rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
