package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plangrid/internal/config"
	"github.com/MarcoPoloResearchLab/plangrid/internal/logging"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "plangrid",
		Short:         "Timetable preference calendar and reference preference store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCommand(),
		newGridCommand(),
		newPaintCommand(),
		newExportCommand(),
		newTokenCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Token signing secret (overrides env)")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Issued token TTL in minutes")
	flags.String("api-base-url", defaults.GetString("api.base_url"), "Preference store base URL")
	flags.String("api-token", "", "Bearer token for the preference store")
	flags.Int("api-timeout-seconds", defaults.GetInt("api.timeout_seconds"), "Per-request timeout in seconds")
	flags.String("organization-uuid", "", "Organization sent as X-Organization-Uuid")
	flags.String("plan-settings-uuid", defaults.GetString("session.plan_settings_uuid"), "Plan settings whose periods form the grid rows")
	flags.Int("commit-concurrency", defaults.GetInt("commit.concurrency"), "In-flight store calls per commit partition")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "api.token", "api-token")
	bindFlag(cmd, "api.timeout_seconds", "api-timeout-seconds")
	bindFlag(cmd, "session.organization_uuid", "organization-uuid")
	bindFlag(cmd, "session.plan_settings_uuid", "plan-settings-uuid")
	bindFlag(cmd, "commit.concurrency", "commit-concurrency")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}
