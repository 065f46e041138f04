package config

import (
	"testing"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REGISTRY_BACKEND", "")
	t.Setenv("COUNTER_BACKEND", "")
	t.Setenv("GOLD_SPONSOR_ROLE_ID", "555")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.RegistryBackend != BackendLocal {
		t.Fatalf("registry backend = %q, want local", cfg.Storage.RegistryBackend)
	}
	if cfg.Storage.CounterBackend != BackendLocal {
		t.Fatalf("counter backend = %q, want local", cfg.Storage.CounterBackend)
	}
	if cfg.Dispatcher.DedupWindow != 2*time.Second {
		t.Fatalf("dedup window = %v", cfg.Dispatcher.DedupWindow)
	}
	gold, ok := cfg.Sponsors.Lookup("gold")
	if !ok || gold.RoleID != "555" || gold.Emoji != "🥇" {
		t.Fatalf("gold tier = %+v, %v", gold, ok)
	}
}

func TestLoadPostgresDefaultsWhenDSNSet(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/tickets")
	t.Setenv("REGISTRY_BACKEND", "")
	t.Setenv("COUNTER_BACKEND", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.RegistryBackend != BackendPostgres {
		t.Fatalf("registry backend = %q", cfg.Storage.RegistryBackend)
	}
	if cfg.Storage.CounterBackend != BackendRedis {
		t.Fatalf("counter backend = %q", cfg.Storage.CounterBackend)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:    StorageConfig{CounterBackend: BackendMemory, RegistryBackend: BackendMemory, Timeout: time.Second},
			Dispatcher: DispatcherConfig{DedupWindow: time.Second, DedupBackend: BackendMemory},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown registry", mutate: func(c *Config) { c.Storage.RegistryBackend = "mysql" }, wantErr: true},
		{name: "redis registry unsupported", mutate: func(c *Config) { c.Storage.RegistryBackend = BackendRedis }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.CounterBackend = BackendPostgres }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.Dispatcher.DedupWindow = 0 }, wantErr: true},
		{name: "bad dedup backend", mutate: func(c *Config) { c.Dispatcher.DedupBackend = "local" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTicketsConfig(t *testing.T) {
	tc := TicketsConfig{SponsorCategoryID: "100", ReportCategoryID: "200"}
	if tc.Group(domain.CategorySponsor) != "100" || tc.Group(domain.CategoryReport) != "200" {
		t.Fatalf("unexpected groups")
	}
	if tc.RequiredCapability(domain.CategorySponsor) != domain.CapabilityNone {
		t.Fatalf("sponsor tickets should be open by default")
	}
	tc.SponsorRequiresTier = true
	if tc.RequiredCapability(domain.CategorySponsor) != domain.CapabilitySponsor {
		t.Fatalf("sponsor tickets should require tier")
	}
	if tc.RequiredCapability(domain.CategoryReport) != domain.CapabilityNone {
		t.Fatalf("report tickets never require a capability")
	}
}
