package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON 读取并反序列化，不存在时返回 ErrMiss
func GetJSON(ctx context.Context, kv KV, key string, out any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSONTTL 序列化后写入，ttl<=0 时永久保存
func SetJSONTTL(ctx context.Context, kv KV, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if ttl <= 0 {
		return kv.Set(ctx, key, string(data))
	}
	return kv.SetTTL(ctx, key, string(data), ttl)
}
