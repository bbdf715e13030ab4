package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.JitterFraction != 0.1 {
		t.Errorf("JitterFraction = %v", cfg.JitterFraction)
	}
	if len(cfg.NotifyMinutes) != 3 || cfg.NotifyMinutes[0] != 15 {
		t.Errorf("NotifyMinutes = %v", cfg.NotifyMinutes)
	}
	if cfg.HasGoogle() || cfg.HasCalDAV() {
		t.Error("providers should be unconfigured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NM_SYNC_INTERVAL_SEC", "60")
	t.Setenv("NM_NOTIFY_MINUTES", "10, 2")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("CALDAV_URL", "https://dav.example.com/cal/")
	t.Setenv("CALDAV_CALENDARS", "work, personal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if len(cfg.NotifyMinutes) != 2 || cfg.NotifyMinutes[1] != 2 {
		t.Errorf("NotifyMinutes = %v", cfg.NotifyMinutes)
	}
	if !cfg.HasGoogle() || !cfg.HasCalDAV() {
		t.Error("providers should be configured")
	}
	if len(cfg.CalDAVCalendars) != 2 || cfg.CalDAVCalendars[1] != "personal" {
		t.Errorf("CalDAVCalendars = %v", cfg.CalDAVCalendars)
	}
}

func TestLoadRejectsBadJitter(t *testing.T) {
	t.Setenv("NM_JITTER_FRACTION", "1.5")
	if _, err := Load(); err == nil {
		t.Error("jitter above 1 should be rejected")
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultSocketPath(); got != "/run/user/1000/nextmeeting.sock" {
		t.Errorf("DefaultSocketPath() = %q", got)
	}
	if got := DefaultPidFilePath(); got != "/run/user/1000/nextmeeting.pid" {
		t.Errorf("DefaultPidFilePath() = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := DefaultSocketPath(); !strings.HasPrefix(got, "/tmp/nextmeeting-") || !strings.HasSuffix(got, ".sock") {
		t.Errorf("fallback socket path = %q", got)
	}
}
