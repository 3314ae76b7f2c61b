package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected server defaults %+v", cfg)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("unexpected api timeout %s", cfg.APITimeout)
	}
	if cfg.PlanSettingsUUID != defaultPlanSettings || cfg.CommitConcurrency != 1 {
		t.Fatalf("unexpected session defaults %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PLANGRID_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("PLANGRID_API_TOKEN", "env-token")
	t.Setenv("PLANGRID_SESSION_ORGANIZATION_UUID", "org-1")
	t.Setenv("PLANGRID_COMMIT_CONCURRENCY", "4")
	t.Setenv("PLANGRID_LOG_FORMAT", "console")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.SigningSecret != "env-secret" || cfg.APIToken != "env-token" || cfg.OrganizationUUID != "org-1" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if cfg.CommitConcurrency != 4 || cfg.LogFormat != "console" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		key   string
		value string
	}{
		{key: "auth.token_ttl_minutes", value: "-1"},
		{key: "api.timeout_seconds", value: "-5"},
		{key: "commit.concurrency", value: "-2"},
		{key: "log.format", value: "xml"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.key, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected error for %s=%s", testCase.key, testCase.value)
			}
		})
	}
}

func TestValidationProfiles(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Fatalf("expected server validation to require a signing secret")
	}
	if err := cfg.ValidateClient(); err == nil {
		t.Fatalf("expected client validation to require an api token")
	}

	cfg.SigningSecret = "secret"
	cfg.APIToken = "token"
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("unexpected server validation error: %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		t.Fatalf("unexpected client validation error: %v", err)
	}

	cfg.PlanSettingsUUID = ""
	if err := cfg.ValidateClient(); err == nil {
		t.Fatalf("expected client validation to require a plan settings uuid")
	}
}
