package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
scrape:
  workers: 8
  base_backoff: 500ms
tracker:
  interval: 15m
kafka:
  brokers: ["k1:9092"]
`)
	t.Setenv("SCRAPER_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Scrape.Workers != 8 || cfg.Scrape.MaxAttempts != 3 {
		t.Errorf("scrape = %+v, want 8 workers and default 3 attempts", cfg.Scrape)
	}
	if cfg.Scrape.BaseBackoff != 500*time.Millisecond || cfg.Scrape.MaxBackoff != time.Minute {
		t.Errorf("backoff = %s..%s", cfg.Scrape.BaseBackoff, cfg.Scrape.MaxBackoff)
	}
	if cfg.Tracker.Interval != 15*time.Minute {
		t.Errorf("tracker interval = %s, want 15m", cfg.Tracker.Interval)
	}
	if cfg.Fetcher.APIKey != "secret" {
		t.Errorf("api key = %q, want value from SCRAPER_API_KEY", cfg.Fetcher.APIKey)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.TopicPrefix != "trackr" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Scrape:   ScrapeConfig{Workers: 1, MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute},
			Tracker:  TrackerConfig{Enabled: true, Interval: time.Hour},
			Fetcher:  FetcherConfig{Provider: "api"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"no workers", func(c *Config) { c.Scrape.Workers = 0 }, true},
		{"no attempts", func(c *Config) { c.Scrape.MaxAttempts = 0 }, true},
		{"max below base", func(c *Config) { c.Scrape.MaxBackoff = time.Millisecond }, true},
		{"tracker without interval", func(c *Config) { c.Tracker.Interval = 0 }, true},
		{"disabled tracker without interval", func(c *Config) { c.Tracker = TrackerConfig{} }, false},
		{"unknown fetcher", func(c *Config) { c.Fetcher.Provider = "browser" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		cfg  DatabaseConfig
		want string
	}{
		{DatabaseConfig{Driver: "sqlite", Path: "/tmp/t.db"}, "/tmp/t.db?_busy_timeout=5000"},
		{DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3306, Name: "trackr"},
			"u:p@tcp(db:3306)/trackr?charset=utf8mb4&parseTime=True&loc=UTC"},
		{DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "trackr", SSLMode: "disable"},
			"host=db port=5432 user=u password=p dbname=trackr sslmode=disable TimeZone=UTC"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Driver, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
