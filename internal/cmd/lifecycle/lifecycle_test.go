package lifecycle

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("lifecycle", flag.ContinueOnError)
	t.Setenv("FABLEFORGE_LIFECYCLE_PORT", "9091")
	t.Setenv("FABLEFORGE_LIFECYCLE_DB_PATH", "/tmp/lifecycle.db")

	cfg, err := ParseConfig(fs, []string{"-sweep-interval", "5s", "-max-item-attempts", "7"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9091 {
		t.Fatalf("port = %d, want 9091", cfg.Port)
	}
	if cfg.DBPath != "/tmp/lifecycle.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "/tmp/lifecycle.db")
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("sweep interval = %s, want 5s", cfg.SweepInterval)
	}
	if cfg.MaxItemAttempts != 7 {
		t.Fatalf("max item attempts = %d, want 7", cfg.MaxItemAttempts)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("lifecycle", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8091 {
		t.Fatalf("port = %d, want 8091", cfg.Port)
	}
	if cfg.DBPath != "data/lifecycle.db" {
		t.Fatalf("db path = %q, want data/lifecycle.db", cfg.DBPath)
	}
	if cfg.AccountGrace != 720*time.Hour {
		t.Fatalf("account grace = %s, want 720h", cfg.AccountGrace)
	}
	if cfg.DefaultGrace != 168*time.Hour {
		t.Fatalf("default grace = %s, want 168h", cfg.DefaultGrace)
	}
	if cfg.InactivityLimit != 8760*time.Hour {
		t.Fatalf("inactivity limit = %s, want 8760h", cfg.InactivityLimit)
	}
	if cfg.DormancyPeriod != 2160*time.Hour {
		t.Fatalf("dormancy period = %s, want 2160h", cfg.DormancyPeriod)
	}
}
