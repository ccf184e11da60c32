package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestGet_CreatesWithDefaults(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := s.Get("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != "guild-1" {
		t.Errorf("ID = %q, want guild-1", c.ID)
	}
	if c.DefaultModel != "llama3" {
		t.Errorf("DefaultModel = %q, want llama3", c.DefaultModel)
	}
	if c.RandomReply.Enabled {
		t.Error("RandomReply.Enabled = true, want false")
	}
	if c.RandomReply.Probability != 0.05 {
		t.Errorf("RandomReply.Probability = %v, want 0.05", c.RandomReply.Probability)
	}
	if c.RandomReply.CooldownSec != 300 {
		t.Errorf("RandomReply.CooldownSec = %d, want 300", c.RandomReply.CooldownSec)
	}
	if c.Pagination.PageSize != 1500 {
		t.Errorf("Pagination.PageSize = %d, want 1500", c.Pagination.PageSize)
	}
	for _, kind := range PermissionKinds {
		if c.Permissions[kind] == nil {
			t.Errorf("Permissions[%s] = nil, want empty slice", kind)
		}
	}

	// First reference persists the record.
	if _, err := os.Stat(filepath.Join(s.dir, "guild-1.json")); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	a, _ := s.Get("guild-1")
	a.DefaultModel = "mistral"
	a.Permissions[PermSetModel] = append(a.Permissions[PermSetModel], "role-1")

	b, _ := s.Get("guild-1")
	if b.DefaultModel != "llama3" {
		t.Errorf("mutation leaked into cache: DefaultModel = %q", b.DefaultModel)
	}
	if len(b.Permissions[PermSetModel]) != 0 {
		t.Errorf("mutation leaked into cache: Permissions = %v", b.Permissions[PermSetModel])
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := s.Get("guild-1")
	c.DefaultModel = "mistral"
	c.AllowedModels = []string{"mistral", "llama3"}
	c.Permissions[PermReplyTo] = []string{"role-9"}
	c.SystemInstructions = "Be terse."
	c.RandomReply.Enabled = true
	if err := s.Save(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A fresh store must read the same record back from disk.
	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DefaultModel != "mistral" {
		t.Errorf("DefaultModel = %q, want mistral", got.DefaultModel)
	}
	if !reflect.DeepEqual(got.AllowedModels, []string{"mistral", "llama3"}) {
		t.Errorf("AllowedModels = %v", got.AllowedModels)
	}
	if !reflect.DeepEqual(got.Permissions[PermReplyTo], []string{"role-9"}) {
		t.Errorf("Permissions[reply_to] = %v", got.Permissions[PermReplyTo])
	}
	if got.SystemInstructions != "Be terse." {
		t.Errorf("SystemInstructions = %q", got.SystemInstructions)
	}
	if !got.RandomReply.Enabled {
		t.Error("RandomReply.Enabled = false, want true")
	}
}

func TestSave_Normalizes(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	c, _ := s.Get("guild-1")
	c.RandomReply.Probability = 1.7
	c.RandomReply.CooldownSec = -10
	c.Pagination.PageSize = 50
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get("guild-1")
	if got.RandomReply.Probability != 1 {
		t.Errorf("Probability = %v, want clamped to 1", got.RandomReply.Probability)
	}
	if got.RandomReply.CooldownSec != 0 {
		t.Errorf("CooldownSec = %d, want clamped to 0", got.RandomReply.CooldownSec)
	}
	if got.Pagination.PageSize != MinPageSize {
		t.Errorf("PageSize = %d, want clamped to %d", got.Pagination.PageSize, MinPageSize)
	}
}

func TestLoad_MigratesHandEditedRecord(t *testing.T) {
	dir := t.TempDir()

	// A version-1 record with missing permission keys and an out-of-range
	// page size, as an operator's editor might leave it.
	raw := map[string]any{
		"id":            "guild-1",
		"version":       1,
		"default_model": "",
		"pagination":    map[string]any{"enabled": true, "page_size": 9999},
	}
	data, _ := json.Marshal(raw)
	if err := os.WriteFile(filepath.Join(dir, "guild-1.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Get("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", c.Version, SchemaVersion)
	}
	if c.DefaultModel != "llama3" {
		t.Errorf("DefaultModel = %q, want llama3", c.DefaultModel)
	}
	if c.Pagination.PageSize != MaxPageSize {
		t.Errorf("PageSize = %d, want clamped to %d", c.Pagination.PageSize, MaxPageSize)
	}
	for _, kind := range PermissionKinds {
		if c.Permissions[kind] == nil {
			t.Errorf("Permissions[%s] = nil after migrate", kind)
		}
	}
}

func TestGet_SeedsFromDefaultTemplate(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tmpl, _ := s.Get(DefaultTemplateID)
	tmpl.DefaultModel = "mistral"
	tmpl.RandomReply.Enabled = true
	tmpl.RandomReply.LastTriggered = 12345
	if err := s.Save(tmpl); err != nil {
		t.Fatal(err)
	}

	c, err := s.Get("guild-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != "guild-new" {
		t.Errorf("ID = %q, want guild-new", c.ID)
	}
	if c.DefaultModel != "mistral" {
		t.Errorf("DefaultModel = %q, want mistral from template", c.DefaultModel)
	}
	if !c.RandomReply.Enabled {
		t.Error("RandomReply.Enabled = false, want true from template")
	}
	if c.RandomReply.LastTriggered != 0 {
		t.Errorf("LastTriggered = %d, want 0 for a fresh community", c.RandomReply.LastTriggered)
	}
}

func TestDeleteAndList(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"b-guild", "a-guild", DefaultTemplateID} {
		if _, err := s.Get(id); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a-guild", "b-guild"}) {
		t.Errorf("List() = %v, want [a-guild b-guild]", ids)
	}

	if err := s.Delete("a-guild"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, _ = s.List()
	if !reflect.DeepEqual(ids, []string{"b-guild"}) {
		t.Errorf("List() after delete = %v, want [b-guild]", ids)
	}

	// Deleting a missing record is not an error.
	if err := s.Delete("nope"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestModelAllowed(t *testing.T) {
	c := NewCommunity("g")
	if !c.ModelAllowed("anything") {
		t.Error("empty allow-list should permit every model")
	}
	c.AllowedModels = []string{"llama3", "mistral"}
	if !c.ModelAllowed("mistral") {
		t.Error("listed model should be allowed")
	}
	if c.ModelAllowed("qwen") {
		t.Error("unlisted model should not be allowed")
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty dir")
	}
}
