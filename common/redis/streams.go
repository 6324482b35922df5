package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// DecodeJSON 解析 PublishJSONToStream 写入的 data 字段
func (m StreamMessage) DecodeJSON(out interface{}) error {
	raw, ok := m.Values["data"].(string)
	if !ok {
		return fmt.Errorf("stream message %s has no data field", m.ID)
	}
	return json.Unmarshal([]byte(raw), out)
}

// PublishJSONToStream 发布 JSON 消息到 Redis Streams
// maxLen > 0 时只保留最近 maxLen 条
func PublishJSONToStream(ctx context.Context, client Client, stream string, maxLen int64, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}

// LastStreamID 最新消息ID，stream 不存在或为空时为 "0-0"
func LastStreamID(ctx context.Context, client Client, stream string) (string, error) {
	msgs, err := client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// ReadFromStream 读取 lastID 之后的消息，最多阻塞 block；block <= 0 时不阻塞
// 每个实例独立读取全部消息（不使用消费者组）
func ReadFromStream(ctx context.Context, client Client, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}
	if block <= 0 {
		args.Block = -1
	}

	streams, err := client.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}
