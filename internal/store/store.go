// Package store persists per-community Switchboard settings as JSON
// records, one file per community.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Permission kinds recognized by the permission engine.
const (
	PermSetModel     = "set_model"
	PermManageConfig = "manage_config"
	PermReplyTo      = "reply_to"
)

// PermissionKinds lists all valid permission kinds in display order.
var PermissionKinds = []string{PermSetModel, PermManageConfig, PermReplyTo}

// SchemaVersion is the current on-disk record version. Older records are
// migrated in place at load time.
const SchemaVersion = 2

// DefaultTemplateID is the reserved community ID whose record, if present,
// seeds the settings of communities seen for the first time.
const DefaultTemplateID = "default"

// Pagination bounds enforced on load and on every mutation.
const (
	MinPageSize = 100
	MaxPageSize = 2000
)

// RandomReply holds the autonomous-reply policy for a community.
type RandomReply struct {
	Enabled       bool    `json:"enabled"`
	Probability   float64 `json:"probability"`     // in [0, 1]
	CooldownSec   int     `json:"cooldown_sec"`    // >= 0
	LastTriggered int64   `json:"last_triggered"`  // unix seconds
}

// Pagination holds the long-response delivery policy for a community.
type Pagination struct {
	Enabled  bool `json:"enabled"`
	PageSize int  `json:"page_size"` // chars per page, in [MinPageSize, MaxPageSize]
}

// Community is the full per-community configuration record.
type Community struct {
	ID                 string              `json:"id"`
	Version            int                 `json:"version"`
	AllowedModels      []string            `json:"allowed_models"` // empty means all models permitted
	Permissions        map[string][]string `json:"permissions"`    // permission kind -> role IDs
	BotDisplayName     string              `json:"bot_display_name,omitempty"`
	DefaultModel       string              `json:"default_model"`
	SystemInstructions string              `json:"system_instructions,omitempty"`
	RandomReply        RandomReply         `json:"random_reply"`
	Pagination         Pagination          `json:"pagination"`
}

// NewCommunity returns a Community with default settings.
func NewCommunity(id string) *Community {
	return &Community{
		ID:      id,
		Version: SchemaVersion,
		Permissions: map[string][]string{
			PermSetModel:     {},
			PermManageConfig: {},
			PermReplyTo:      {},
		},
		DefaultModel: "llama3",
		RandomReply: RandomReply{
			Probability: 0.05,
			CooldownSec: 300,
		},
		Pagination: Pagination{
			PageSize: 1500,
		},
	}
}

// Clone returns a deep copy, safe to mutate without affecting the store's
// cached record.
func (c *Community) Clone() *Community {
	out := *c
	out.AllowedModels = append([]string(nil), c.AllowedModels...)
	out.Permissions = make(map[string][]string, len(c.Permissions))
	for k, v := range c.Permissions {
		out.Permissions[k] = append([]string(nil), v...)
	}
	return &out
}

// ModelAllowed reports whether the named model may be selected in this
// community. An empty allow-list permits every model.
func (c *Community) ModelAllowed(name string) bool {
	if len(c.AllowedModels) == 0 {
		return true
	}
	for _, m := range c.AllowedModels {
		if m == name {
			return true
		}
	}
	return false
}

// normalize migrates older records and clamps out-of-range values. It runs
// on every load and save so a hand-edited file can never push an invalid
// page size or probability into the pipeline.
func (c *Community) normalize() {
	if c.Permissions == nil {
		c.Permissions = map[string][]string{}
	}
	for _, kind := range PermissionKinds {
		if c.Permissions[kind] == nil {
			c.Permissions[kind] = []string{}
		}
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "llama3"
	}
	if c.RandomReply.Probability < 0 {
		c.RandomReply.Probability = 0
	}
	if c.RandomReply.Probability > 1 {
		c.RandomReply.Probability = 1
	}
	if c.RandomReply.CooldownSec < 0 {
		c.RandomReply.CooldownSec = 0
	}
	if c.Pagination.PageSize < MinPageSize {
		c.Pagination.PageSize = MinPageSize
	}
	if c.Pagination.PageSize > MaxPageSize {
		c.Pagination.PageSize = MaxPageSize
	}
	c.Version = SchemaVersion
}

// Store loads and saves Community records under a single directory. All
// mutating methods write the whole record atomically; there are no
// partial-field updates at the storage layer.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Community
}

// Open creates the data directory if needed and returns a Store.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &Store{
		dir:   dir,
		cache: make(map[string]*Community),
	}, nil
}

// path returns the record path for a community ID.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Get returns the configuration for a community, creating it with defaults
// on first reference. New communities start from the "default" template
// record when one exists. The returned value is a copy; mutate it and call
// Save to persist.
func (s *Store) Get(id string) (*Community, error) {
	s.mu.RLock()
	if c, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return c.Clone(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[id]; ok {
		return c.Clone(), nil
	}

	c, err := s.load(id)
	if os.IsNotExist(err) {
		c = s.fromTemplate(id)
		if werr := s.write(c); werr != nil {
			// The record lives on in memory; persistence is retried on
			// the next Save.
			return c.Clone(), fmt.Errorf("store: persist new community %s: %w", id, werr)
		}
	} else if err != nil {
		return nil, err
	}
	s.cache[id] = c
	return c.Clone(), nil
}

// Save replaces the community's record, in memory first and then on disk.
// A write failure is returned but the in-memory record stays updated, so
// the running process remains consistent until restart.
func (s *Store) Save(c *Community) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("store: community id is required")
	}
	clone := c.Clone()
	clone.normalize()

	s.mu.Lock()
	s.cache[clone.ID] = clone
	s.mu.Unlock()

	if err := s.write(clone); err != nil {
		return fmt.Errorf("store: save %s: %w", clone.ID, err)
	}
	return nil
}

// Delete removes a community's record. This is an explicit operator action;
// nothing deletes records automatically.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// List returns the IDs of all persisted communities, sorted. The reserved
// default template is excluded.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", s.dir, err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if id != DefaultTemplateID {
			seen[id] = true
		}
	}
	s.mu.RLock()
	for id := range s.cache {
		if id != DefaultTemplateID {
			seen[id] = true
		}
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// fromTemplate builds a new community record, copying the default template
// when one is on disk. Caller holds s.mu.
func (s *Store) fromTemplate(id string) *Community {
	if id != DefaultTemplateID {
		if tmpl, err := s.load(DefaultTemplateID); err == nil {
			c := tmpl.Clone()
			c.ID = id
			c.RandomReply.LastTriggered = 0
			return c
		}
	}
	return NewCommunity(id)
}

// load reads and migrates a record from disk.
func (s *Store) load(id string) (*Community, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("store: read %s: %w", id, err)
	}
	var c Community
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", id, err)
	}
	c.ID = id
	c.normalize()
	return &c, nil
}

// write persists a record with an atomic tmp+rename overwrite so a crash
// mid-write never leaves a truncated file behind.
func (s *Store) write(c *Community) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.CreateTemp(s.dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, s.path(c.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
