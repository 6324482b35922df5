package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis配置
// Addrs 只有一个地址时为单点；多个地址且设置了 MasterName 时为哨兵；多个地址无 MasterName 时为集群
type RedisConfig struct {
	Addrs      []string
	MasterName string
	Password   string
	DB         int
	PoolSize   int
	MinIdle    int
	Timeout    time.Duration
}

// SSOConfig 目录服务（SSO）配置
type SSOConfig struct {
	Host       string
	PageSize   int
	PlatformID int
	JWTSecret  string
	Timeout    time.Duration
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 从环境变量加载配置
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Port)
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		c.User = user
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if database := os.Getenv(prefix + "_NAME"); database != "" {
		c.Database = database
	}
	if sslMode := os.Getenv(prefix + "_SSLMODE"); sslMode != "" {
		c.SSLMode = sslMode
	}
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addrs := os.Getenv(prefix + "_ADDRS"); addrs != "" {
		c.Addrs = SplitList(addrs)
	}
	if master := os.Getenv(prefix + "_MASTER_NAME"); master != "" {
		c.MasterName = master
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
	if poolSize := os.Getenv(prefix + "_POOL_SIZE"); poolSize != "" {
		fmt.Sscanf(poolSize, "%d", &c.PoolSize)
	}
	if minIdle := os.Getenv(prefix + "_MIN_IDLE"); minIdle != "" {
		fmt.Sscanf(minIdle, "%d", &c.MinIdle)
	}
	if timeout := os.Getenv(prefix + "_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Timeout = d
		}
	}
}

// LoadFromEnv 从环境变量加载SSO配置
func (c *SSOConfig) LoadFromEnv(prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if size := os.Getenv(prefix + "_PAGE_SIZE"); size != "" {
		fmt.Sscanf(size, "%d", &c.PageSize)
	}
	if platformID := os.Getenv(prefix + "_PLATFORM_ID"); platformID != "" {
		fmt.Sscanf(platformID, "%d", &c.PlatformID)
	}
	if secret := os.Getenv(prefix + "_JWT_SECRET"); secret != "" {
		c.JWTSecret = secret
	}
	if timeout := os.Getenv(prefix + "_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Timeout = d
		}
	}
}

// SplitList 拆分逗号分隔的配置项，忽略空白项
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
