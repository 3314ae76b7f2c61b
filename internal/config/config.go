package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PLANGRID"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "plangrid.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTokenIssuer     = "plangrid-auth"
	defaultTokenAudience   = "plangrid-api"
	defaultTokenTTLMinutes = 30
	defaultAPIBaseURL      = "http://localhost:8080"
	defaultAPITimeout      = 15
	defaultPlanSettings    = "default"
	defaultCommitWorkers   = 1
	defaultPeriodCount     = 8
)

// AppConfig captures runtime configuration for the store and the calendar client.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration

	APIBaseURL       string
	APIToken         string
	APITimeout       time.Duration
	OrganizationUUID string
	PlanSettingsUUID string

	CommitConcurrency int
	// SeedPeriodCount is the number of periods the store seeds for an empty plan.
	SeedPeriodCount int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.timeout_seconds", defaultAPITimeout)
	configViper.SetDefault("session.plan_settings_uuid", defaultPlanSettings)
	configViper.SetDefault("commit.concurrency", defaultCommitWorkers)
	configViper.SetDefault("plan.period_count", defaultPeriodCount)
}

// Load parses runtime configuration from viper. Profile checks are left to
// ValidateServer and ValidateClient.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		DatabasePath:      strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		TokenIssuer:       strings.TrimSpace(configViper.GetString("auth.issuer")),
		TokenAudience:     strings.TrimSpace(configViper.GetString("auth.audience")),
		TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		APIBaseURL:        strings.TrimSpace(configViper.GetString("api.base_url")),
		APIToken:          strings.TrimSpace(configViper.GetString("api.token")),
		APITimeout:        time.Duration(configViper.GetInt("api.timeout_seconds")) * time.Second,
		OrganizationUUID:  strings.TrimSpace(configViper.GetString("session.organization_uuid")),
		PlanSettingsUUID:  strings.TrimSpace(configViper.GetString("session.plan_settings_uuid")),
		CommitConcurrency: configViper.GetInt("commit.concurrency"),
		SeedPeriodCount:   configViper.GetInt("plan.period_count"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl_minutes must not be negative")
	}
	if c.APITimeout < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}
	if c.CommitConcurrency < 0 {
		return fmt.Errorf("commit.concurrency must not be negative")
	}
	if c.SeedPeriodCount < 0 {
		return fmt.Errorf("plan.period_count must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// ValidateServer checks the settings required to run the reference store.
func (c AppConfig) ValidateServer() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	return nil
}

// ValidateClient checks the settings required to talk to a preference store.
func (c AppConfig) ValidateClient() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.APIToken == "" {
		return fmt.Errorf("api.token is required")
	}
	if c.PlanSettingsUUID == "" {
		return fmt.Errorf("session.plan_settings_uuid is required")
	}
	return nil
}
