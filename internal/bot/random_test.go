package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"switchboard/internal/store"
)

func newTestReplier(t *testing.T) (*RandomReplier, *store.Store, *fakeInference) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	inf := &fakeInference{response: "a short quip"}
	r, err := NewRandomReplier(RandomReplierOpts{
		Store:     s,
		Inference: inf,
		Registry:  NewActiveRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	r.randFloat = func() float64 { return 0 } // always under the probability
	return r, s, inf
}

func enableRandom(t *testing.T, s *store.Store) {
	t.Helper()
	cc, err := s.Get("guild-1")
	if err != nil {
		t.Fatal(err)
	}
	cc.RandomReply.Enabled = true
	cc.RandomReply.Probability = 1
	cc.RandomReply.CooldownSec = 0
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}
}

func chatter(text string) Message {
	m := testMsg(member)
	m.Text = text
	return m
}

func TestRandomReply_Triggers(t *testing.T) {
	r, s, inf := newTestReplier(t)
	enableRandom(t, s)

	got := r.Consider(context.Background(), chatter("this message is long enough to engage with"))
	if got != "a short quip" {
		t.Errorf("Consider() = %q, want the generated reply", got)
	}

	req, ok := inf.lastRequest()
	if !ok {
		t.Fatal("no inference request made")
	}
	if !strings.HasPrefix(req.Prompt, randomReplyPreamble) {
		t.Errorf("prompt = %q, want the group-chat preamble", req.Prompt)
	}
	if !strings.HasSuffix(req.Prompt, "this message is long enough to engage with") {
		t.Errorf("prompt = %q, want the original text", req.Prompt)
	}
}

func TestRandomReply_DisabledByDefault(t *testing.T) {
	r, _, inf := newTestReplier(t)

	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q, want silence when disabled", got)
	}
	if _, called := inf.lastRequest(); called {
		t.Error("inference called while disabled")
	}
}

func TestRandomReply_ProbabilityGate(t *testing.T) {
	r, s, _ := newTestReplier(t)
	enableRandom(t, s)

	cc, _ := s.Get("guild-1")
	cc.RandomReply.Probability = 0.3
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}

	r.randFloat = func() float64 { return 0.9 }
	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q, want silence on a failed roll", got)
	}

	r.randFloat = func() float64 { return 0.1 }
	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got == "" {
		t.Error("Consider() = empty, want a reply on a passing roll")
	}
}

func TestRandomReply_Cooldown(t *testing.T) {
	r, s, _ := newTestReplier(t)
	enableRandom(t, s)

	cc, _ := s.Get("guild-1")
	cc.RandomReply.CooldownSec = 300
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	r.now = func() time.Time { return base }

	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got == "" {
		t.Fatal("first Consider() = empty, want a reply")
	}

	// The cooldown stamp persists, so an immediate second trigger stays
	// quiet.
	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q inside the cooldown, want silence", got)
	}

	r.now = func() time.Time { return base.Add(301 * time.Second) }
	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got == "" {
		t.Error("Consider() = empty after the cooldown, want a reply")
	}
}

func TestRandomReply_CooldownStampedBeforeGenerate(t *testing.T) {
	r, s, inf := newTestReplier(t)
	enableRandom(t, s)

	cc, _ := s.Get("guild-1")
	cc.RandomReply.CooldownSec = 300
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	r.now = func() time.Time { return base }

	// Even a failed generate consumes the cooldown window.
	inf.genErr = errors.New("backend down")
	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q on backend error, want silence", got)
	}
	cc, _ = s.Get("guild-1")
	if cc.RandomReply.LastTriggered != base.Unix() {
		t.Errorf("LastTriggered = %d, want %d stamped before generate", cc.RandomReply.LastTriggered, base.Unix())
	}
}

func TestRandomReply_MinimumLength(t *testing.T) {
	r, s, _ := newTestReplier(t)
	enableRandom(t, s)

	if got := r.Consider(context.Background(), chatter("too short")); got != "" {
		t.Errorf("Consider() = %q for a short message, want silence", got)
	}
}

func TestRandomReply_PermissionGate(t *testing.T) {
	r, s, _ := newTestReplier(t)
	enableRandom(t, s)

	cc, _ := s.Get("guild-1")
	cc.Permissions[store.PermReplyTo] = []string{"r-vip"}
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}

	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q for an ineligible author, want silence", got)
	}
}

func TestRandomReply_BusyAuthorSkipped(t *testing.T) {
	r, s, inf := newTestReplier(t)
	enableRandom(t, s)

	r.registry.Acquire(member.ID)
	defer r.registry.Release(member.ID)

	if got := r.Consider(context.Background(), chatter("plenty of characters in this one")); got != "" {
		t.Errorf("Consider() = %q for a busy author, want silence", got)
	}
	if _, called := inf.lastRequest(); called {
		t.Error("inference called for a busy author")
	}
}

func TestRandomReply_Truncation(t *testing.T) {
	r, s, inf := newTestReplier(t)
	enableRandom(t, s)

	inf.response = strings.Repeat("y", 600)
	got := r.Consider(context.Background(), chatter("plenty of characters in this one"))
	if len(got) != 503 {
		t.Fatalf("len(reply) = %d, want 503", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("reply does not end in ellipsis: %q", got[490:])
	}
}

func TestRandomReply_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "guild-1.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	inf := &fakeInference{response: "a short quip"}
	r, err := NewRandomReplier(RandomReplierOpts{
		Store:     s,
		Inference: inf,
		Registry:  NewActiveRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	r.randFloat = func() float64 { return 0 }

	got := r.Consider(context.Background(), chatter("this message is long enough to engage with"))
	if got != "" {
		t.Errorf("Consider() = %q, want silence for an unreadable record", got)
	}
	if _, ok := inf.lastRequest(); ok {
		t.Error("inference called with an unreadable record")
	}
}
