package bot

import (
	"context"
	"fmt"
	"sync"

	"switchboard/internal/ollama"
)

// mockAdapter implements Adapter plus every optional capability. Tests
// that need a capability-poor platform use bareAdapter instead.
type mockAdapter struct {
	mu sync.Mutex

	connected bool
	closed    bool
	inbound   chan Message

	sent    []Outbound
	sendErr error

	history    []HistoryMessage
	historyErr error

	roles    []Role
	rolesErr error

	fetched  map[string]*HistoryMessage
	fetchErr error

	renames   []string
	renameErr error

	typingChannels []string

	sessions []*PageSession
	pagesErr error

	botID string
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		inbound: make(chan Message, 16),
		fetched: make(map[string]*HistoryMessage),
		botID:   "bot-1",
	}
}

func (a *mockAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *mockAdapter) Listen(ctx context.Context) (<-chan Message, error) {
	return a.inbound, nil
}

func (a *mockAdapter) Send(ctx context.Context, msg Outbound) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, msg)
	return nil
}

func (a *mockAdapter) History(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	if len(a.history) > limit {
		return a.history[:limit], nil
	}
	return a.history, nil
}

func (a *mockAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.inbound)
	}
	return nil
}

func (a *mockAdapter) BotUserID() string { return a.botID }

func (a *mockAdapter) Roles(ctx context.Context, communityID string) ([]Role, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rolesErr != nil {
		return nil, a.rolesErr
	}
	return a.roles, nil
}

func (a *mockAdapter) FetchMessage(ctx context.Context, channelID, messageID string) (*HistoryMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	if m, ok := a.fetched[messageID]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("mock: message %s not found", messageID)
}

func (a *mockAdapter) SetDisplayName(ctx context.Context, communityID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.renameErr != nil {
		return a.renameErr
	}
	a.renames = append(a.renames, communityID+":"+name)
	return nil
}

func (a *mockAdapter) Typing(ctx context.Context, channelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typingChannels = append(a.typingChannels, channelID)
}

func (a *mockAdapter) SendPages(ctx context.Context, msg Outbound, session *PageSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pagesErr != nil {
		return a.pagesErr
	}
	a.sessions = append(a.sessions, session)
	return nil
}

func (a *mockAdapter) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sent))
	for i, s := range a.sent {
		out[i] = s.Text
	}
	return out
}

// bareAdapter exposes only the required Adapter surface of a mockAdapter,
// hiding roles, renames, typing, message fetch, and pagination controls.
type bareAdapter struct {
	inner *mockAdapter
}

func (b *bareAdapter) Connect(ctx context.Context) error { return b.inner.Connect(ctx) }
func (b *bareAdapter) Listen(ctx context.Context) (<-chan Message, error) {
	return b.inner.Listen(ctx)
}
func (b *bareAdapter) Send(ctx context.Context, msg Outbound) error { return b.inner.Send(ctx, msg) }
func (b *bareAdapter) History(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error) {
	return b.inner.History(ctx, channelID, limit)
}
func (b *bareAdapter) Close() error { return b.inner.Close() }

// fakeInference is a canned Inference backend.
type fakeInference struct {
	mu sync.Mutex

	response  string
	genErr    error
	models    []string
	modelsErr error

	reqs []ollama.GenerateRequest
}

func (f *fakeInference) Generate(ctx context.Context, req ollama.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.response, nil
}

func (f *fakeInference) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	return f.models, nil
}

func (f *fakeInference) lastRequest() (ollama.GenerateRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return ollama.GenerateRequest{}, false
	}
	return f.reqs[len(f.reqs)-1], true
}
