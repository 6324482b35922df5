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

	"orgcache/common/database"
	logpkg "orgcache/common/logger"
	redispkg "orgcache/common/redis"
	"orgcache/internal/config"
	"orgcache/internal/directory"
	httpapi "orgcache/internal/http"
	"orgcache/internal/leader"
	"orgcache/internal/orgcache"
	"orgcache/internal/repository"
	"orgcache/internal/service"
	"orgcache/internal/store"
	"orgcache/internal/syncer"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "orgcache")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting orgcache service",
		zap.String("redis_topology", string(redispkg.DetectTopology(&cfg.Redis))),
		zap.String("sso_host", cfg.SSO.Host),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	redisClient := redispkg.NewRedisClient(&cfg.Redis)
	defer redispkg.Close(redisClient)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = redispkg.Ping(pingCtx, redisClient)
	pingCancel()
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	kv := store.NewRedisKV(redisClient)

	// 同步审计（可选）
	var (
		recorder syncer.RunRecorder
		runs     httpapi.RunLister
	)
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close(db)

		repo := repository.NewSyncRunRepository(db, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to prepare sync run table", zap.Error(err))
		}
		recorder, runs = repo, repo
	}

	dir := directory.NewClient(cfg.SSO, log)
	cache := orgcache.New(kv, leader.NewEngine(nil), log)

	hostname, _ := os.Hostname()
	scheduler := syncer.New(cache, dir, kv, recorder, syncer.Options{
		Enabled:       cfg.Sync.Enabled,
		Interval:      cfg.Sync.Interval,
		RefreshWindow: cfg.Sync.RefreshWindow,
		CtiCodes:      cfg.Sync.CtiCodes,
		Instance:      fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		Notifier:      syncer.NewStreamNotifier(redisClient, 5*time.Second, log),
	}, log)

	svc := service.NewOrgService(cache, dir, kv, log)

	handler := httpapi.NewOrgHandler(svc, cache, scheduler, runs, log)
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes(handler)
	router.RegisterOrgRoutes(handler)
	router.RegisterSyncRoutes(handler)
	server := httpapi.NewServer(cfg.HTTP.Addr, router, log)

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	scheduler.Start(ctx)

	// 启动 HTTP 服务（在 goroutine 中）
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	// 停止服务
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := scheduler.Stop(stopCtx); err != nil {
		log.Error("Error stopping sync scheduler", zap.Error(err))
	}

	log.Info("Service stopped")
}
