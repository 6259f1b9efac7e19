package model

import (
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	want := &AppConfig{
		Mailbox: MailboxConfig{Address: "user@example.com", Region: "eu"},
		Search: SearchConfig{
			DateRangeDays:   5,
			SearchAllFields: true,
			TimeoutSec:      120,
		},
		StorePath:  "/tmp/invoice-finder.db",
		InvoiceDir: "/tmp/invoices",
	}

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got.Mailbox != want.Mailbox {
		t.Errorf("Mailbox = %+v, want %+v", got.Mailbox, want.Mailbox)
	}
	if got.Search != want.Search {
		t.Errorf("Search = %+v, want %+v", got.Search, want.Search)
	}
	if got.StorePath != want.StorePath || got.InvoiceDir != want.InvoiceDir {
		t.Errorf("paths = %q/%q, want %q/%q", got.StorePath, got.InvoiceDir, want.StorePath, want.InvoiceDir)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Search.SearchAllFields {
		t.Error("SearchAllFields default = false, want true")
	}
	if cfg.Search.TimeoutSec != 300 {
		t.Errorf("TimeoutSec default = %d, want 300", cfg.Search.TimeoutSec)
	}
	if cfg.StorePath == "" || cfg.InvoiceDir == "" {
		t.Error("default paths must not be empty")
	}
	if cfg.Mailbox.Address != "" {
		t.Errorf("Mailbox.Address default = %q, want empty", cfg.Mailbox.Address)
	}
}
