// orgcache-export 从 Redis 镜像加载组织架构并导出部门领导表
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	logpkg "orgcache/common/logger"
	redispkg "orgcache/common/redis"
	"orgcache/internal/config"
	"orgcache/internal/export"
	"orgcache/internal/leader"
	"orgcache/internal/orgcache"
	"orgcache/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "orgcache-export",
	Short: "Export departments and resolved leaders to xlsx",
	Long:  `Loads the organization cache from its redis mirror (REDIS_* environment) and writes one row per department.`,
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringP("output", "o", "departments.xlsx", "Output xlsx file path")
	rootCmd.Flags().Duration("timeout", 2*time.Minute, "Redis load timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, "console", "orgcache-export")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := redispkg.NewRedisClient(&cfg.Redis)
	defer redispkg.Close(client)
	if err := redispkg.Ping(ctx, client); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	cache := orgcache.New(store.NewRedisKV(client), leader.NewEngine(nil), log)
	if err := cache.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load organization cache: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteDepartments(f, cache, cache.Engine().Tiers()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	stats := cache.Stats()
	log.Info("Departments exported", zap.String("file", path), zap.Int("departments", stats.Departments))
	return nil
}
