package redis

import (
	"context"

	"orgcache/common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis客户端类型别名（单点/哨兵/集群统一接口）
type Client = redis.UniversalClient

// Topology 部署拓扑
type Topology string

const (
	TopologySingle   Topology = "single"
	TopologySentinel Topology = "sentinel"
	TopologyCluster  Topology = "cluster"
)

// DetectTopology 根据配置判断拓扑
func DetectTopology(cfg *config.RedisConfig) Topology {
	if len(cfg.Addrs) > 1 {
		if cfg.MasterName != "" {
			return TopologySentinel
		}
		return TopologyCluster
	}
	if cfg.MasterName != "" {
		return TopologySentinel
	}
	return TopologySingle
}

// NewRedisClient 创建Redis客户端
func NewRedisClient(cfg *config.RedisConfig) Client {
	addrs := cfg.Addrs
	if len(addrs) == 0 {
		addrs = []string{"localhost:6379"}
	}
	opts := &redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   cfg.MasterName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdle,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}

	// 集群模式不支持 DB 选择，UniversalClient 在多地址无 MasterName 时会创建 ClusterClient
	if DetectTopology(cfg) == TopologyCluster {
		opts.DB = 0
	}
	return redis.NewUniversalClient(opts)
}

// Ping 测试Redis连接
func Ping(ctx context.Context, client Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func Close(client Client) error {
	return client.Close()
}
