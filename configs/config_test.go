package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"DISPLAY_TZ_OFFSET_HOURS", "MAX_RETRIES", "RETRY_BACKOFF", "LEASE_STALE_AFTER", "HTTP_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Scheduling.DisplayOffsetHours != 7 {
		t.Errorf("DisplayOffsetHours = %d", cfg.Scheduling.DisplayOffsetHours)
	}
	if cfg.Dispatch.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.Dispatch.Retry.MaxRetries)
	}
	want := []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	if len(cfg.Dispatch.Retry.Backoff) != len(want) {
		t.Fatalf("Backoff = %v", cfg.Dispatch.Retry.Backoff)
	}
	for i := range want {
		if cfg.Dispatch.Retry.Backoff[i] != want[i] {
			t.Errorf("Backoff[%d] = %v, want %v", i, cfg.Dispatch.Retry.Backoff[i], want[i])
		}
	}
	if cfg.Dispatch.LeaseStaleAfter != 15*time.Minute {
		t.Errorf("LeaseStaleAfter = %v", cfg.Dispatch.LeaseStaleAfter)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DISPLAY_TZ_OFFSET_HOURS", "9")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_BACKOFF", "10s, 20s")
	t.Setenv("PUBLISH_TIMEOUT", "90s")

	cfg := LoadConfig()
	if cfg.Scheduling.DisplayOffsetHours != 9 {
		t.Errorf("DisplayOffsetHours = %d", cfg.Scheduling.DisplayOffsetHours)
	}
	if cfg.Dispatch.Retry.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.Dispatch.Retry.MaxRetries)
	}
	if got := cfg.Dispatch.Retry.Backoff; len(got) != 2 || got[1] != 20*time.Second {
		t.Errorf("Backoff = %v", got)
	}
	if cfg.Dispatch.PublishTimeout != 90*time.Second {
		t.Errorf("PublishTimeout = %v", cfg.Dispatch.PublishTimeout)
	}
	if _, off := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone(); off != 9*3600 {
		t.Errorf("zone offset = %d", off)
	}
}

func TestLoadConfig_InvalidFallsBack(t *testing.T) {
	t.Setenv("MAX_RETRIES", "many")
	t.Setenv("RETRY_BACKOFF", "soon")
	t.Setenv("LEASE_STALE_AFTER", "-1m")

	cfg := LoadConfig()
	if cfg.Dispatch.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.Dispatch.Retry.MaxRetries)
	}
	if len(cfg.Dispatch.Retry.Backoff) != 3 {
		t.Errorf("Backoff = %v", cfg.Dispatch.Retry.Backoff)
	}
	if cfg.Dispatch.LeaseStaleAfter != 15*time.Minute {
		t.Errorf("LeaseStaleAfter = %v", cfg.Dispatch.LeaseStaleAfter)
	}
}

func TestLocation_InvalidOffset(t *testing.T) {
	cfg := &Config{Scheduling: Scheduling{DisplayOffsetHours: 20}}
	if _, off := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone(); off != 7*3600 {
		t.Errorf("zone offset = %d, want default", off)
	}
}

func TestLoadConfig_PublishTimeoutBoundedByLease(t *testing.T) {
	tests := []struct {
		name    string
		publish string
		stale   string
		want    time.Duration
	}{
		{name: "defaults fit", publish: "", stale: "", want: 10 * time.Minute},
		{name: "equal is clamped", publish: "15m", stale: "15m", want: 11*time.Minute + 15*time.Second},
		{name: "longer is clamped", publish: "1h", stale: "20m", want: 15 * time.Minute},
		{name: "shorter is kept", publish: "2m", stale: "5m", want: 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PUBLISH_TIMEOUT", tt.publish)
			t.Setenv("LEASE_STALE_AFTER", tt.stale)

			cfg := LoadConfig()
			if cfg.Dispatch.PublishTimeout != tt.want {
				t.Errorf("PublishTimeout = %v, want %v", cfg.Dispatch.PublishTimeout, tt.want)
			}
			if cfg.Dispatch.PublishTimeout >= cfg.Dispatch.LeaseStaleAfter {
				t.Errorf("PublishTimeout %v not below LeaseStaleAfter %v", cfg.Dispatch.PublishTimeout, cfg.Dispatch.LeaseStaleAfter)
			}
		})
	}
}
