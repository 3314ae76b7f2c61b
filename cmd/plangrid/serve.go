package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plangrid/internal/auth"
	"github.com/MarcoPoloResearchLab/plangrid/internal/config"
	"github.com/MarcoPoloResearchLab/plangrid/internal/database"
	"github.com/MarcoPoloResearchLab/plangrid/internal/records"
	"github.com/MarcoPoloResearchLab/plangrid/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference preference store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

func seedPeriodNames(count int) []string {
	names := make([]string, 0, count)
	for index := 1; index <= count; index++ {
		names = append(names, fmt.Sprintf("Period %d", index))
	}
	return names
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := appConfig.ValidateServer(); err != nil {
		return err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	recordsService, err := records.NewService(records.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: records.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	periods, err := recordsService.SeedPeriods(ctx, appConfig.PlanSettingsUUID, seedPeriodNames(appConfig.SeedPeriodCount))
	if err != nil {
		return err
	}
	logger.Info("plan periods ready",
		zap.String("plan_settings_uuid", appConfig.PlanSettingsUUID),
		zap.Int("periods", len(periods)))

	tokenIssuer, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:   tokenIssuer,
		Records:  recordsService,
		Realtime: server.NewRealtimeDispatcher(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
