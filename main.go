package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chxlky/trello-archiver/api"
	"github.com/chxlky/trello-archiver/archive"
	"github.com/chxlky/trello-archiver/config"
	"github.com/chxlky/trello-archiver/database"
	"github.com/chxlky/trello-archiver/integrations"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func initLogger() *zap.Logger {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := cfg.Build()
	zap.ReplaceGlobals(logger)
	return logger
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Run one archival pass over the configured source list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			db, err := database.Init(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			sqlDB, _ := db.DB()
			defer sqlDB.Close()

			store := database.NewStore(db)
			client := integrations.NewTrelloClient(cfg.Trello)
			fetcher := archive.NewFetcher(cfg.Archive.AttachmentDir, client)
			orch := archive.NewOrchestrator(cfg, client, store, fetcher)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := orch.Run(ctx)
			if err != nil {
				if errors.Is(err, integrations.ErrUnauthorized) {
					return fmt.Errorf("configuration error: %w", err)
				}
				// Transient run-level failures are retried by the next
				// invocation and don't fail the exit code.
				zap.L().Error("Archive run aborted", zap.Error(err))
				return nil
			}

			zap.L().Info("Archive run complete",
				zap.Int("eligible", res.Eligible),
				zap.Int("archived", res.Archived),
				zap.Int("skipped", res.Skipped),
				zap.Int("failed", res.Failed),
				zap.Int("deleted_remotely", res.Deleted),
				zap.Int("attachments_fetched", res.AttachmentsFetched),
				zap.Int("attachments_failed", res.AttachmentsFailed))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only archive API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			db, err := database.Init(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			sqlDB, _ := db.DB()
			defer sqlDB.Close()

			router := gin.New()
			router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
			router.Use(ginzap.RecoveryWithZap(zap.L(), true))

			apiHandler := &api.Handler{Store: database.NewStore(db)}
			apiGroup := router.Group("/api")
			{
				apiGroup.GET("/health", apiHandler.HealthCheckHandler)
				apiGroup.GET("/cards", apiHandler.ListCardsHandler)
				apiGroup.GET("/cards/:id", apiHandler.GetCardHandler)
				apiGroup.GET("/stats/lists", apiHandler.ListStatsHandler)
			}

			srv := &http.Server{
				Addr:    ":" + cfg.Server.Port,
				Handler: router,
			}

			errCh := make(chan error, 1)
			zap.L().Info("Starting server", zap.String("port", cfg.Server.Port))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}

			zap.L().Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("Error shutting down server", zap.Error(err))
			} else {
				zap.L().Info("HTTP server shut down gracefully.")
			}
			return nil
		},
	}
}

func main() {
	logger := initLogger()
	defer logger.Sync()

	root := &cobra.Command{
		Use:           "trello-archiver",
		Short:         "Archive Trello cards into a local SQLite store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(archiveCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		zap.L().Error("Fatal", zap.Error(err))
		os.Exit(1)
	}
}
