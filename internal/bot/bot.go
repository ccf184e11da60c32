package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"switchboard/internal/models"
	"switchboard/internal/store"
)

// DefaultRefreshCron is the model-list refresh schedule.
const DefaultRefreshCron = "*/5 * * * *"

// ModelCache holds the most recent model list from the backend. The
// panel and CLI read it without hitting the backend.
type ModelCache struct {
	mu        sync.RWMutex
	names     []string
	refreshed time.Time
}

// Set replaces the cached list.
func (mc *ModelCache) Set(names []string) {
	mc.mu.Lock()
	mc.names = names
	mc.refreshed = time.Now()
	mc.mu.Unlock()
}

// Names returns a copy of the cached list and when it was refreshed.
func (mc *ModelCache) Names() ([]string, time.Time) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return append([]string(nil), mc.names...), mc.refreshed
}

// Daemon is the main switchboard process. It connects to a chat platform
// via an Adapter, pumps inbound messages through the dispatch pipeline,
// and keeps the model list fresh on a cron schedule.
type Daemon struct {
	store     *store.Store
	adapter   Adapter
	inference Inference
	db        *gorm.DB
	pager     *PagerStore
	cache     *ModelCache

	prefix       string
	refreshCron  string
	randomMinLen int
	out          io.Writer

	mu         sync.Mutex
	dispatcher *Dispatcher
	registry   *ActiveRegistry
	started    time.Time
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Store     *store.Store
	Adapter   Adapter
	Inference Inference
	DB        *gorm.DB    // optional; enables the audit log
	Pager     *PagerStore // optional; created when nil
	Cache     *ModelCache // optional; created when nil

	Prefix       string // defaults to "!"
	RefreshCron  string // defaults to DefaultRefreshCron
	RandomMinLen int    // defaults to DefaultRandomMinLen
	Out          io.Writer
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Inference == nil {
		return nil, fmt.Errorf("bot: inference is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "!"
	}
	refreshCron := opts.RefreshCron
	if refreshCron == "" {
		refreshCron = DefaultRefreshCron
	}
	pager := opts.Pager
	if pager == nil {
		pager = NewPagerStore(0)
	}
	cache := opts.Cache
	if cache == nil {
		cache = &ModelCache{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.DB == nil {
		fmt.Fprintf(out, "bot: no database configured; audit log disabled\n")
	}
	return &Daemon{
		store:        opts.Store,
		adapter:      opts.Adapter,
		inference:    opts.Inference,
		db:           opts.DB,
		pager:        pager,
		cache:        cache,
		prefix:       prefix,
		refreshCron:  refreshCron,
		randomMinLen: opts.RandomMinLen,
		out:          out,
	}, nil
}

// Pager returns the pagination session store, shared with the adapter.
func (d *Daemon) Pager() *PagerStore { return d.pager }

// Cache returns the model cache.
func (d *Daemon) Cache() *ModelCache { return d.cache }

// Busy reports how many actors have requests in flight.
func (d *Daemon) Busy() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registry == nil {
		return 0
	}
	return d.registry.Len()
}

// Started reports when the current Run began, zero if not running.
func (d *Daemon) Started() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Run starts the daemon. It connects the adapter, builds the dispatch
// pipeline, and blocks until the context is cancelled. On shutdown it
// closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Switchboard connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	registry := NewActiveRegistry()

	commands, err := NewCommands(CommandsOpts{
		Store:     d.store,
		Inference: d.inference,
		Adapter:   d.adapter,
		Prefix:    d.prefix,
		Audit:     d.audit,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build commands: %w", err)
	}

	router := &Router{
		Prefix: d.prefix,
		BotID:  botUserID,
		Known:  commands.Known,
	}

	random, err := NewRandomReplier(RandomReplierOpts{
		Store:     d.store,
		Inference: d.inference,
		Registry:  registry,
		Audit:     d.audit,
		MinLen:    d.randomMinLen,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build random replier: %w", err)
	}

	dispatcher, err := NewDispatcher(DispatcherOpts{
		Adapter:   d.adapter,
		Store:     d.store,
		Inference: d.inference,
		Commands:  commands,
		Router:    router,
		Registry:  registry,
		Pager:     d.pager,
		Random:    random,
		Audit:     d.audit,
		BotUserID: botUserID,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build dispatcher: %w", err)
	}

	d.mu.Lock()
	d.dispatcher = dispatcher
	d.registry = registry
	d.started = time.Now()
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.dispatcher = nil
		d.registry = nil
		d.started = time.Time{}
		d.mu.Unlock()
	}()

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	// Prime the model cache and correct stale default models, then keep
	// refreshing on schedule.
	d.refreshModels(ctx)
	sched := cron.New()
	if _, err := sched.AddFunc(d.refreshCron, func() { d.refreshModels(ctx) }); err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: refresh schedule %q: %w", d.refreshCron, err)
	}
	sched.Start()
	defer sched.Stop()

	fmt.Fprintf(d.out, "Switchboard online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Switchboard shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Switchboard stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Switchboard inbound channel closed\n")
				return nil
			}
			go dispatcher.Handle(ctx, msg)
		}
	}
}

// refreshModels queries the backend's model list, caches it, and eagerly
// corrects any community whose default model is no longer advertised.
func (d *Daemon) refreshModels(ctx context.Context) {
	names, err := d.inference.ListModels(ctx)
	if err != nil {
		log.Printf("bot: refresh models: %v", err)
		return
	}
	d.cache.Set(names)
	if len(names) == 0 {
		return
	}

	ids, err := d.store.List()
	if err != nil {
		log.Printf("bot: list communities: %v", err)
		return
	}
	for _, id := range ids {
		cc, err := d.store.Get(id)
		if err != nil {
			log.Printf("bot: load community %s: %v", id, err)
			continue
		}
		if contains(names, cc.DefaultModel) {
			continue
		}
		replacement := ""
		for _, name := range names {
			if cc.ModelAllowed(name) {
				replacement = name
				break
			}
		}
		if replacement == "" {
			log.Printf("bot: community %s: default model %q unavailable and no allowed replacement", id, cc.DefaultModel)
			continue
		}
		log.Printf("bot: community %s: default model %q unavailable; switching to %q", id, cc.DefaultModel, replacement)
		cc.DefaultModel = replacement
		if err := d.store.Save(cc); err != nil {
			log.Printf("bot: save community %s: %v", id, err)
		}
	}
}

// audit records an event to the database when one is configured. The
// panel's activity feed reads these rows.
func (d *Daemon) audit(event string, m Message, content, response string) {
	log.Printf("bot: %s community=%s user=%s %s", event, m.CommunityID, m.Actor.Name, truncate(content, 120))
	if d.db == nil {
		return
	}
	entry := models.AuditEntry{
		CommunityID: m.CommunityID,
		Event:       event,
		UserName:    m.Actor.Name,
		Content:     content,
		Response:    response,
	}
	if err := d.db.Create(&entry).Error; err != nil {
		log.Printf("bot: audit write: %v", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
