package bot

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"switchboard/internal/models"
	"switchboard/internal/ollama"
	"switchboard/internal/perm"
	"switchboard/internal/store"
)

// DefaultRandomMinLen is the shortest message a random reply will engage
// with.
const DefaultRandomMinLen = 10

const randomReplyPreamble = "The following is a message in a group chat. Please respond to it naturally and briefly (1-2 sentences max):\n\n"

// RandomReplier decides whether the bot autonomously engages with a
// message that did not address it, and produces the reply when it does.
// Gates apply in order: feature toggle, cooldown, probability roll,
// reply permission, minimum length. Failures on this path are logged but
// never sent to the channel; nobody asked the bot anything.
type RandomReplier struct {
	store     *store.Store
	inference Inference
	registry  *ActiveRegistry
	audit     Auditor
	minLen    int

	randFloat func() float64 // test override
	now       func() time.Time
}

// RandomReplierOpts holds parameters for creating a RandomReplier.
type RandomReplierOpts struct {
	Store     *store.Store
	Inference Inference
	Registry  *ActiveRegistry
	Audit     Auditor // optional
	MinLen    int     // defaults to DefaultRandomMinLen
}

// NewRandomReplier creates a RandomReplier.
func NewRandomReplier(opts RandomReplierOpts) (*RandomReplier, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: random replier: store is required")
	}
	if opts.Inference == nil {
		return nil, fmt.Errorf("bot: random replier: inference is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bot: random replier: registry is required")
	}
	minLen := opts.MinLen
	if minLen <= 0 {
		minLen = DefaultRandomMinLen
	}
	audit := opts.Audit
	if audit == nil {
		audit = func(string, Message, string, string) {}
	}
	return &RandomReplier{
		store:     opts.Store,
		inference: opts.Inference,
		registry:  opts.Registry,
		audit:     audit,
		minLen:    minLen,
		randFloat: rand.Float64,
		now:       time.Now,
	}, nil
}

// Consider evaluates one undirected message and returns the reply text,
// or "" when the bot stays quiet.
func (r *RandomReplier) Consider(ctx context.Context, m Message) string {
	cc, err := r.store.Get(m.CommunityID)
	if err != nil {
		log.Printf("bot: random reply: load community %s: %v", m.CommunityID, err)
		return ""
	}
	if !cc.RandomReply.Enabled {
		return ""
	}
	now := r.now().Unix()
	if now-cc.RandomReply.LastTriggered < int64(cc.RandomReply.CooldownSec) {
		return ""
	}
	if r.randFloat() >= cc.RandomReply.Probability {
		return ""
	}
	if !perm.CanReplyTo(m.Actor, cc.Permissions[store.PermReplyTo]) {
		return ""
	}
	if len(m.Text) <= r.minLen {
		return ""
	}

	// Stamp the cooldown before generating so a slow backend can't let
	// several triggers through.
	cc.RandomReply.LastTriggered = now
	if err := r.store.Save(cc); err != nil {
		log.Printf("bot: random reply: save community %s: %v", cc.ID, err)
	}

	// The author didn't ask for anything; if they already have a request
	// in flight, skip quietly instead of posting a busy notice.
	if !r.registry.Acquire(m.Actor.ID) {
		return ""
	}
	defer r.registry.Release(m.Actor.ID)

	r.audit(models.AuditRandomReply, m, m.Text, "")

	answer, err := r.inference.Generate(ctx, ollama.GenerateRequest{
		Model:  cc.DefaultModel,
		Prompt: randomReplyPreamble + m.Text,
		System: cc.SystemInstructions,
	})
	if err != nil {
		log.Printf("bot: random reply: generate: %v", err)
		return ""
	}
	if len(answer) > 500 {
		answer = answer[:500] + "..."
	}
	r.audit(models.AuditRandomReply, m, m.Text, answer)
	return answer
}
