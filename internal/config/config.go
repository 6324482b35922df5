package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"orgcache/common/config"
	"orgcache/internal/models"
)

// Config 组织架构缓存服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	SSO      config.SSOConfig

	HTTP struct {
		Addr string
	}

	Sync struct {
		// Enabled 关闭时只从 Redis 加载缓存，不向目录服务拉取（多实例只需一个同步者）
		Enabled bool
		// Interval 同步检查间隔
		Interval time.Duration
		// RefreshWindow 共享同步时间戳在此窗口内则跳过同步
		RefreshWindow time.Duration
		// CtiCodes 需要同步的 CTI 系统编码
		CtiCodes []int
	}

	// DBEnabled 是否记录同步审计（Postgres）
	DBEnabled bool

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值，再由 DB_* / REDIS_* / SSO_* 环境变量覆盖
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "orgcache",
		SSLMode:  "disable",
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "5"), 5)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "2"), 2)
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"

	cfg.Redis = config.RedisConfig{
		Addrs:    []string{"localhost:6379"},
		PoolSize: 10,
		MinIdle:  2,
		Timeout:  3 * time.Second,
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.SSO = config.SSOConfig{
		Host:     "http://localhost:8080/sso/api/",
		PageSize: 500,
		Timeout:  10 * time.Second,
	}
	cfg.SSO.LoadFromEnv("SSO")
	cfg.SSO.Host = strings.TrimRight(cfg.SSO.Host, "/") + "/"
	if cfg.SSO.PageSize <= 0 {
		cfg.SSO.PageSize = 500
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Sync.Enabled = getEnv("SYNC_ENABLED", "true") == "true"
	cfg.Sync.Interval = parseDuration(getEnv("SYNC_INTERVAL", "60m"), 60*time.Minute)
	cfg.Sync.RefreshWindow = parseDuration(getEnv("SYNC_REFRESH_WINDOW", "60m"), 60*time.Minute)
	cfg.Sync.CtiCodes = parseIntList(os.Getenv("SSO_CTI_CODES"))
	if len(cfg.Sync.CtiCodes) == 0 {
		cfg.Sync.CtiCodes = models.EnabledCtiCodes()
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

// parseIntList 解析 "1,2,3"，非法项忽略
func parseIntList(s string) []int {
	var out []int
	for _, part := range config.SplitList(s) {
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		}
	}
	return out
}
