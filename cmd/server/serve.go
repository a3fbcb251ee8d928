package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ihrahat0/whalespad-sub001/internal/database"
	"github.com/ihrahat0/whalespad-sub001/internal/handler"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/router"
	"github.com/ihrahat0/whalespad-sub001/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := scheduler.NewManager(a.clock, cfg.StopTimeout(), a.transition, a.reconcile)
	if err != nil {
		return err
	}

	r := router.Setup(a.campaignLogic, handler.NewHealthHandler(a.db, a.chains), a.metrics)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := tasks.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return tasks.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Init(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	logger.Info("Database migrated")
	return nil
}

// runOnce 单次执行两个任务，便于运维补跑或排查
func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, job := range []scheduler.Job{a.transition, a.reconcile} {
		res, err := job.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", job.GetName(), err)
		}
		logger.Info("%s: scanned %d, changed %d, skipped %d", job.GetName(), res.Scanned, res.Changed, res.Skipped)
	}
	return nil
}
