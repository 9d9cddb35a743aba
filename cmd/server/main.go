package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitclash/battle-backend/internal/config"
	"github.com/fitclash/battle-backend/internal/conn"
	"github.com/fitclash/battle-backend/internal/coordinator"
	"github.com/fitclash/battle-backend/internal/httpapi"
	"github.com/fitclash/battle-backend/internal/notify"
	"github.com/fitclash/battle-backend/internal/proximity"
	"github.com/fitclash/battle-backend/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading environment directly")
	}
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	st, err := store.NewGormStore(db)
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	dir := store.NewGormDirectory(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := conn.NewHub(ctx, logger)
	reg := coordinator.NewRegistry(ctx, coordinator.Deps{
		Store:          st,
		Emitter:        hub,
		Sink:           notify.LogSink{Log: logger},
		Log:            logger,
		CountdownFrom:  cfg.CountdownFrom,
		PersistRetries: cfg.PersistRetries,
	})
	if err := reg.Rehydrate(ctx, st); err != nil {
		logger.Fatal("rehydrate", zap.Error(err))
	}

	svc := &coordinator.Service{
		Reg: reg,
		St:  st,
		Dir: dir,
		Prox: &proximity.Broadcaster{
			Dir:      dir,
			Conns:    hub,
			RadiusKM: cfg.NearbyRadiusKM,
			Log:      logger,
		},
		Hub: hub,
		Log: logger,
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(svc, hub, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reg.Inbox() <- coordinator.ShutdownAll{}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
