package intake

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("INTAKE_DB_PATH", "env/intake.db")
	t.Setenv("INTAKE_CONFLICT_CHECKER_URL", "https://checker.example.com/check")
	t.Setenv("INTAKE_SYNC_FORWARD_INTERVAL", "250ms")
	t.Setenv("INTAKE_SYNC_REDIS_ADDR", "env-redis:6379")

	fs := flag.NewFlagSet("intake", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-addr", ":9999", "-redis-addr", "flag-redis:6379"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("http addr = %q, want flag override", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env/intake.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if cfg.CheckerURL != "https://checker.example.com/check" {
		t.Fatalf("checker url = %q", cfg.CheckerURL)
	}
	if cfg.ForwardInterval != 250*time.Millisecond {
		t.Fatalf("forward interval = %s", cfg.ForwardInterval)
	}
	if cfg.Sync.Addr != "flag-redis:6379" {
		t.Fatalf("redis addr = %q, want flag override", cfg.Sync.Addr)
	}
	if cfg.Sync.Group == "" {
		t.Fatal("expected a default consumer group")
	}
}
