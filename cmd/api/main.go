package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"rctmle/adapters/api"
	"rctmle/adapters/postgres"
	"rctmle/internal"
	"rctmle/internal/config"
	"rctmle/ports"
)

func main() {
	_ = godotenv.Load()
	logger := internal.DefaultLogger

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}

	var repo ports.ResultRepository
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			logger.Error("database: %v", err)
			os.Exit(1)
		}
		defer db.Close()

		pgRepo := postgres.NewResultRepository(db).(*postgres.ResultRepositoryImpl)
		if err := pgRepo.Migrate(context.Background()); err != nil {
			logger.Error("migrate: %v", err)
			os.Exit(1)
		}
		repo = pgRepo
		logger.Info("result store connected")
	} else {
		logger.Warn("DATABASE_URL not set, results will not be persisted")
	}

	app := api.NewApp(cfg.Estimator, repo, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // estimation runs synchronously
	}

	go func() {
		logger.Info("listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
	logger.Info("stopped")
}
