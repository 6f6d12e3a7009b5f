package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonesrussell/shortsync/internal/config"
)

const minimalYAML = `
groups:
  - id: sports
    channels: [alpha, beta]
    publish_days: [Monday, Thursday, Sunday]
    run_interval: 72h
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Quota.DailyBudget != config.DefaultDailyBudget {
		t.Errorf("DailyBudget = %d, want %d", cfg.Quota.DailyBudget, config.DefaultDailyBudget)
	}
	if cfg.Quota.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Quota.Timezone)
	}
	if cfg.Quota.OperationCosts["upload_video"] != 1600 {
		t.Errorf("upload_video cost = %d, want 1600", cfg.Quota.OperationCosts["upload_video"])
	}
	if cfg.Threshold.SmallFloor != 3000 || cfg.Threshold.MediumFloor != 8000 || cfg.Threshold.LargeFloor != 15000 {
		t.Errorf("unexpected threshold floors: %+v", cfg.Threshold)
	}
	if cfg.Stats.WindowSize != config.DefaultWindowSize {
		t.Errorf("WindowSize = %d, want %d", cfg.Stats.WindowSize, config.DefaultWindowSize)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("TickInterval = %v, want 1m", cfg.Scheduler.TickInterval)
	}
}

func TestLoadGroupWeekdays(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	days, err := cfg.Groups[0].Weekdays()
	if err != nil {
		t.Fatalf("Weekdays() error = %v", err)
	}
	want := []time.Weekday{time.Monday, time.Thursday, time.Sunday}
	if len(days) != len(want) {
		t.Fatalf("Weekdays() = %v, want %v", days, want)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("Weekdays()[%d] = %v, want %v", i, days[i], want[i])
		}
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "valid minimal config",
			content: minimalYAML,
			wantErr: false,
		},
		{
			name: "missing groups",
			content: `
debug: true
`,
			wantErr: true,
		},
		{
			name: "group without channels",
			content: `
groups:
  - id: empty
    channels: []
`,
			wantErr: true,
		},
		{
			name: "duplicate group ids",
			content: `
groups:
  - id: sports
    channels: [a]
  - id: sports
    channels: [b]
`,
			wantErr: true,
		},
		{
			name: "bad weekday name",
			content: `
groups:
  - id: sports
    channels: [a]
    publish_days: [Funday]
`,
			wantErr: true,
		},
		{
			name: "negative run interval",
			content: `
groups:
  - id: sports
    channels: [a]
    run_interval: -1h
`,
			wantErr: true,
		},
		{
			name: "bad timezone",
			content: `
quota:
  timezone: Mars/Olympus
groups:
  - id: sports
    channels: [a]
`,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			if (err != nil) != tc.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUOTA_DAILY_BUDGET", "5000")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("APP_DEBUG", "yes")

	cfg, err := config.Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Quota.DailyBudget != 5000 {
		t.Errorf("DailyBudget = %d, want 5000", cfg.Quota.DailyBudget)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, want redis.internal:6380", cfg.Redis.Addr)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
}
