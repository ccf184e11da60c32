package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"switchboard/internal/models"
	"switchboard/internal/ollama"
	"switchboard/internal/perm"
	"switchboard/internal/store"
)

// Dispatcher runs the per-message pipeline: self-filter, directive
// parsing, reply-eligibility gate, busy gate, command or freeform
// execution, and delivery. One actor gets at most one in-flight request;
// a second directed message while the first is running is rejected with
// a busy notice, never queued.
type Dispatcher struct {
	adapter   Adapter
	store     *store.Store
	inference Inference
	commands  *Commands
	router    *Router
	registry  *ActiveRegistry
	pager     *PagerStore
	random    *RandomReplier
	audit     Auditor
	botUserID string
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Adapter   Adapter
	Store     *store.Store
	Inference Inference
	Commands  *Commands
	Router    *Router
	Registry  *ActiveRegistry
	Pager     *PagerStore
	Random    *RandomReplier // optional; disables random replies when nil
	Audit     Auditor        // optional
	BotUserID string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: dispatcher: adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: dispatcher: store is required")
	}
	if opts.Inference == nil {
		return nil, fmt.Errorf("bot: dispatcher: inference is required")
	}
	if opts.Commands == nil {
		return nil, fmt.Errorf("bot: dispatcher: commands is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("bot: dispatcher: router is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bot: dispatcher: registry is required")
	}
	if opts.Pager == nil {
		return nil, fmt.Errorf("bot: dispatcher: pager is required")
	}
	audit := opts.Audit
	if audit == nil {
		audit = func(string, Message, string, string) {}
	}
	return &Dispatcher{
		adapter:   opts.Adapter,
		store:     opts.Store,
		inference: opts.Inference,
		commands:  opts.Commands,
		router:    opts.Router,
		registry:  opts.Registry,
		pager:     opts.Pager,
		random:    opts.Random,
		audit:     audit,
		botUserID: opts.BotUserID,
	}, nil
}

// Handle processes one inbound message to completion. It is safe to call
// from multiple goroutines; the busy registry serializes per actor.
func (d *Dispatcher) Handle(ctx context.Context, m Message) {
	if m.Actor.ID == "" || m.Actor.ID == d.botUserID {
		return
	}

	dir := d.router.Parse(m.Text)
	if dir.Kind == DirectiveNone {
		if d.random != nil {
			if answer := d.random.Consider(ctx, m); answer != "" {
				d.send(ctx, m, answer, true)
			}
		}
		return
	}

	cc, err := d.store.Get(m.CommunityID)
	if err != nil {
		log.Printf("bot: load community %s: %v", m.CommunityID, err)
		d.audit(models.AuditError, m, m.Text, err.Error())
		return
	}
	// An actor outside the reply list is ignored entirely, busy notices
	// included.
	if !perm.CanReplyTo(m.Actor, cc.Permissions[store.PermReplyTo]) {
		d.audit(models.AuditPermissionDenied, m, m.Text, "")
		return
	}

	if !d.registry.Acquire(m.Actor.ID) {
		d.send(ctx, m, busyNotice, true)
		return
	}
	defer d.registry.Release(m.Actor.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bot: panic handling message %s from %s: %v\n%s", m.MessageID, m.Actor.ID, r, debug.Stack())
			d.audit(models.AuditError, m, m.Text, fmt.Sprint(r))
			d.send(ctx, m, genericErrorNotice, true)
		}
	}()

	switch dir.Kind {
	case DirectiveCommand:
		d.deliver(ctx, m, cc, d.commands.Execute(ctx, m, dir))
	case DirectivePrompt:
		d.deliver(ctx, m, cc, d.freeform(ctx, m, cc, dir.Prompt))
	}
}

// freeform sends mention text straight to the inference backend. An
// empty mention asks nothing and gets nothing.
func (d *Dispatcher) freeform(ctx context.Context, m Message, cc *store.Community, prompt string) Reply {
	if prompt == "" {
		return Reply{}
	}

	d.audit(models.AuditPrompt, m, prompt, "")
	if t, ok := d.adapter.(Typer); ok {
		t.Typing(ctx, m.ChannelID)
	}
	answer, err := d.inference.Generate(ctx, ollama.GenerateRequest{
		Model:  cc.DefaultModel,
		Prompt: prompt,
		System: cc.SystemInstructions,
	})
	if err != nil {
		var se *ollama.StatusError
		text := fmt.Sprintf("Error: %v", err)
		if errors.As(err, &se) {
			text = fmt.Sprintf("Error: Received status code %d from Ollama API", se.Code)
		}
		d.audit(models.AuditError, m, prompt, text)
		return Reply{Text: text}
	}
	d.audit(models.AuditReply, m, prompt, answer)
	return Reply{Text: answer, Paginate: true}
}

// deliver sends a command or freeform reply according to the community's
// pagination settings: interactive pages when enabled and the platform
// supports controls, sequential chunks otherwise.
func (d *Dispatcher) deliver(ctx context.Context, m Message, cc *store.Community, r Reply) {
	if r.Text == "" {
		return
	}

	if r.Paginate && cc.Pagination.Enabled {
		pages := Paginate(r.Text, cc.Pagination.PageSize)
		if len(pages) > 1 {
			if ip, ok := d.adapter.(InteractivePager); ok {
				session := d.pager.Create(m.Actor.ID, pages)
				err := ip.SendPages(ctx, Outbound{
					CommunityID: m.CommunityID,
					ChannelID:   m.ChannelID,
					ReplyTo:     m.MessageID,
				}, session)
				if err == nil {
					return
				}
				d.pager.Remove(session.ID)
				log.Printf("bot: send pages: %v", err)
			}
			// No controls available; post the pages in order.
			for i, page := range pages {
				d.send(ctx, m, fmt.Sprintf("%s\n(Page %d/%d)", page, i+1, len(pages)), i == 0)
			}
			return
		}
	}

	d.send(ctx, m, r.Text, true)
}

// send posts text, chunking at the platform limit when necessary. reply
// marks the first chunk as a reply to the triggering message.
func (d *Dispatcher) send(ctx context.Context, m Message, text string, reply bool) {
	for i, chunk := range Paginate(text, DefaultChunkSize) {
		out := Outbound{
			CommunityID: m.CommunityID,
			ChannelID:   m.ChannelID,
			Text:        chunk,
		}
		if reply && i == 0 {
			out.ReplyTo = m.MessageID
		}
		if err := d.adapter.Send(ctx, out); err != nil {
			log.Printf("bot: send to %s: %v", m.ChannelID, err)
			return
		}
	}
}
