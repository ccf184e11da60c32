package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"switchboard/internal/store"
)

func newTestDaemon(t *testing.T) (*Daemon, *store.Store, *mockAdapter, *fakeInference, *bytes.Buffer) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	adapter := newMockAdapter()
	inf := &fakeInference{response: "generated answer", models: []string{"llama3", "mistral"}}
	var out bytes.Buffer
	d, err := NewDaemon(DaemonOpts{
		Store:     s,
		Adapter:   adapter,
		Inference: inf,
		Out:       &out,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d, s, adapter, inf, &out
}

func TestNewDaemon_Validation(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	adapter := newMockAdapter()
	inf := &fakeInference{}

	if _, err := NewDaemon(DaemonOpts{Adapter: adapter, Inference: inf}); err == nil {
		t.Error("expected error without a store")
	}
	if _, err := NewDaemon(DaemonOpts{Store: s, Inference: inf}); err == nil {
		t.Error("expected error without an adapter")
	}
	if _, err := NewDaemon(DaemonOpts{Store: s, Adapter: adapter}); err == nil {
		t.Error("expected error without an inference client")
	}
}

func TestNewDaemon_WarnsWithoutDatabase(t *testing.T) {
	_, _, _, _, out := newTestDaemon(t)
	if !strings.Contains(out.String(), "audit log disabled") {
		t.Errorf("output = %q, want the audit warning", out.String())
	}
}

func TestDaemonRun_DispatchesInbound(t *testing.T) {
	d, _, adapter, _, out := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Wait for the pipeline to come up.
	deadline := time.After(2 * time.Second)
	for d.Started().IsZero() {
		select {
		case <-deadline:
			t.Fatal("daemon did not start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	m := testMsg(member)
	m.Text = "!ping"
	adapter.inbound <- m

	waitFor(t, func() bool { return len(adapter.sentTexts()) == 1 })
	if texts := adapter.sentTexts(); texts[0] != "Pong!" {
		t.Errorf("sent = %v, want [Pong!]", texts)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if !adapter.closed {
		t.Error("adapter not closed on shutdown")
	}
	if !d.Started().IsZero() {
		t.Error("Started() nonzero after shutdown")
	}
	if !strings.Contains(out.String(), "Switchboard online") {
		t.Errorf("output = %q, want the online banner", out.String())
	}
}

func TestDaemonRun_StopsWhenInboundCloses(t *testing.T) {
	d, _, adapter, _, _ := newTestDaemon(t)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	waitFor(t, func() bool { return !d.Started().IsZero() })
	adapter.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after the inbound channel closed")
	}
}

func TestRefreshModels_PrimesCacheAndCorrectsDefaults(t *testing.T) {
	d, s, _, inf, _ := newTestDaemon(t)

	// A community whose default model the backend no longer advertises.
	cc, _ := s.Get("guild-1")
	cc.DefaultModel = "retired-model"
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}

	d.refreshModels(context.Background())

	names, refreshed := d.Cache().Names()
	if len(names) != 2 || names[0] != "llama3" {
		t.Errorf("cached names = %v", names)
	}
	if refreshed.IsZero() {
		t.Error("refreshed time not set")
	}

	cc, _ = s.Get("guild-1")
	if cc.DefaultModel != "llama3" {
		t.Errorf("DefaultModel = %q, want corrected to llama3", cc.DefaultModel)
	}

	// With an allow-list, the replacement honors it.
	cc.DefaultModel = "retired-model"
	cc.AllowedModels = []string{"mistral"}
	if err := s.Save(cc); err != nil {
		t.Fatal(err)
	}
	d.refreshModels(context.Background())
	cc, _ = s.Get("guild-1")
	if cc.DefaultModel != "mistral" {
		t.Errorf("DefaultModel = %q, want mistral per the allow-list", cc.DefaultModel)
	}

	// Backend errors leave the cache untouched.
	inf.modelsErr = errors.New("backend down")
	d.refreshModels(context.Background())
	names, _ = d.Cache().Names()
	if len(names) != 2 {
		t.Errorf("cached names = %v after refresh failure, want previous list", names)
	}
}

func TestModelCache(t *testing.T) {
	var mc ModelCache
	names, refreshed := mc.Names()
	if len(names) != 0 || !refreshed.IsZero() {
		t.Errorf("empty cache = %v, %v", names, refreshed)
	}

	mc.Set([]string{"llama3"})
	names, refreshed = mc.Names()
	if len(names) != 1 || names[0] != "llama3" {
		t.Errorf("names = %v", names)
	}
	if refreshed.IsZero() {
		t.Error("refreshed not stamped")
	}

	// The returned slice is a copy.
	names[0] = "mutated"
	names, _ = mc.Names()
	if names[0] != "llama3" {
		t.Error("mutation leaked into the cache")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
