package bot

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChunkSize is the fallback chunk size for platforms with a ~2000
// character message limit, leaving headroom for reply decoration.
const DefaultChunkSize = 1900

// DefaultPagerTimeout bounds how long a pagination control accepts clicks.
const DefaultPagerTimeout = 5 * time.Minute

// Paginate splits text into pages of at most max characters, breaking at
// line boundaries when possible. A single line longer than max is
// hard-split at the character boundary. max must be positive; values
// below 1 are treated as 1.
func Paginate(text string, max int) []string {
	if max < 1 {
		max = 1
	}
	if len(text) <= max {
		return []string{text}
	}

	var pages []string
	var cur []string
	curLen := 0
	flush := func() {
		pages = append(pages, strings.Join(cur, "\n"))
		cur = nil
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > max {
			if len(cur) > 0 {
				flush()
			}
			pages = append(pages, line[:max])
			line = line[max:]
		}
		add := len(line)
		if len(cur) > 0 {
			add++ // joining newline
		}
		if curLen+add > max && len(cur) > 0 {
			flush()
			add = len(line)
		}
		cur = append(cur, line)
		curLen += add
	}
	if len(cur) > 0 {
		flush()
	}
	if len(pages) == 0 {
		pages = []string{""}
	}
	return pages
}

// Pagination session errors.
var (
	// ErrNotYours is returned when an actor other than the invoker tries
	// to navigate a paginated response.
	ErrNotYours = errors.New("pager: control belongs to another actor")
	// ErrSessionGone is returned when a session has expired or never
	// existed.
	ErrSessionGone = errors.New("pager: session gone")
)

// PageSession is one delivered multi-page response: its pages, current
// position, and the actor allowed to navigate it.
type PageSession struct {
	ID      string
	OwnerID string
	Pages   []string

	mu      sync.Mutex
	index   int
	created time.Time
}

// PageView is a snapshot of a session's current page.
type PageView struct {
	Content string
	Index   int // zero-based
	Total   int
}

// View returns the session's current page.
func (s *PageSession) View() PageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PageView{Content: s.Pages[s.index], Index: s.index, Total: len(s.Pages)}
}

// Label formats the page-index indicator for a view.
func (v PageView) Label() string {
	return fmt.Sprintf("Page %d/%d", v.Index+1, v.Total)
}

// PagerStore tracks live pagination sessions. Sessions expire after the
// configured timeout; expired sessions reject all further navigation.
type PagerStore struct {
	timeout time.Duration
	seq     atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*PageSession
	now      func() time.Time // test override
}

// NewPagerStore creates a PagerStore. A non-positive timeout uses
// DefaultPagerTimeout.
func NewPagerStore(timeout time.Duration) *PagerStore {
	if timeout <= 0 {
		timeout = DefaultPagerTimeout
	}
	return &PagerStore{
		timeout:  timeout,
		sessions: make(map[string]*PageSession),
		now:      time.Now,
	}
}

// Timeout returns the configured session lifetime.
func (p *PagerStore) Timeout() time.Duration {
	return p.timeout
}

// Create registers a new session owned by the given actor.
func (p *PagerStore) Create(ownerID string, pages []string) *PageSession {
	s := &PageSession{
		ID:      fmt.Sprintf("pg%d", p.seq.Add(1)),
		OwnerID: ownerID,
		Pages:   pages,
		created: p.now(),
	}
	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()
	return s
}

// Flip moves a session forward (delta > 0) or back (delta < 0) on behalf
// of an actor, clamping at the first and last page. Only the owning actor
// may navigate; others get ErrNotYours and no state change.
func (p *PagerStore) Flip(sessionID, actorID string, delta int) (PageView, error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if ok && p.now().Sub(s.created) > p.timeout {
		delete(p.sessions, sessionID)
		ok = false
	}
	p.mu.Unlock()
	if !ok {
		return PageView{}, ErrSessionGone
	}
	if actorID != s.OwnerID {
		return PageView{}, ErrNotYours
	}

	s.mu.Lock()
	s.index += delta
	if s.index < 0 {
		s.index = 0
	}
	if s.index > len(s.Pages)-1 {
		s.index = len(s.Pages) - 1
	}
	view := PageView{Content: s.Pages[s.index], Index: s.index, Total: len(s.Pages)}
	s.mu.Unlock()
	return view, nil
}

// Remove drops a session. Adapters call this when the control times out.
func (p *PagerStore) Remove(sessionID string) {
	p.mu.Lock()
	delete(p.sessions, sessionID)
	p.mu.Unlock()
}

// Len returns the number of live sessions.
func (p *PagerStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
