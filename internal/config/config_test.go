package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BillingSchedule != "0 9 * * *" || cfg.ReminderSchedule != "0 10 * * *" {
		t.Fatalf("unexpected schedules %q / %q", cfg.BillingSchedule, cfg.ReminderSchedule)
	}
	if cfg.StepTimeout != 30*time.Second {
		t.Fatalf("step timeout %v", cfg.StepTimeout)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.StorageBackend != StorageLocal || cfg.AIProvider != ProviderOpenAI {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.GetLoggerConfig().Level != "info" {
		t.Fatalf("logger level %q", cfg.GetLoggerConfig().Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("STEP_TIMEOUT", "5s")
	t.Setenv("BILLING_WORKERS", "4")
	t.Setenv("SCHEDULE_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AIProvider != ProviderGemini || cfg.StepTimeout != 5*time.Second || cfg.BillingWorkers != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("location %s", cfg.Location())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing openai key", map[string]string{}, "OPENAI_API_KEY"},
		{"gcs without bucket", map[string]string{"OPENAI_API_KEY": "k", "STORAGE_BACKEND": "gcs"}, "GCS_BUCKET"},
		{"bad driver", map[string]string{"OPENAI_API_KEY": "k", "DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"bad provider", map[string]string{"AI_PROVIDER": "llama"}, "AI_PROVIDER"},
		{"bad workers", map[string]string{"OPENAI_API_KEY": "k", "BILLING_WORKERS": "0"}, "BILLING_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
