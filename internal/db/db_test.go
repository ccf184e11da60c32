package db

import (
	"path/filepath"
	"strings"
	"testing"

	"switchboard/internal/models"
)

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect("postgres", "dsn")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnectAndMigrate(t *testing.T) {
	gdb, err := Connect("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	entry := models.AuditEntry{
		CommunityID: "guild-1",
		Event:       models.AuditPrompt,
		UserName:    "alice",
		Content:     "what is Go?",
		Response:    "a programming language",
	}
	if err := gdb.Create(&entry).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.ID == 0 {
		t.Error("ID not assigned on insert")
	}

	var got models.AuditEntry
	if err := gdb.First(&got, entry.ID).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Event != models.AuditPrompt || got.Content != "what is Go?" {
		t.Errorf("got = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestAllModels(t *testing.T) {
	if len(AllModels()) == 0 {
		t.Fatal("no models registered for migration")
	}
}
