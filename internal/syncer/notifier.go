package syncer

import (
	"context"
	"time"

	redispkg "orgcache/common/redis"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"

	"go.uber.org/zap"
)

// eventsMaxLen 通知 stream 保留的条数
const eventsMaxLen = 100

// Notifier 同步完成通知
type Notifier interface {
	Publish(ctx context.Context, ev models.SyncEvent) error
	// Latest 当前最新位置，之后的通知由 Next 读取
	Latest(ctx context.Context) (string, error)
	// Next 读取 lastID 之后的通知，无通知时阻塞一段时间后返回空
	Next(ctx context.Context, lastID string) ([]models.SyncEvent, string, error)
}

// StreamNotifier 基于 Redis Stream 的通知
type StreamNotifier struct {
	client redispkg.Client
	stream string
	block  time.Duration
	logger *zap.Logger
}

// NewStreamNotifier block 为单次读取的最长等待时间
func NewStreamNotifier(client redispkg.Client, block time.Duration, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: orgcache.KeySyncEvents,
		block:  block,
		logger: logger,
	}
}

func (n *StreamNotifier) Publish(ctx context.Context, ev models.SyncEvent) error {
	_, err := redispkg.PublishJSONToStream(ctx, n.client, n.stream, eventsMaxLen, ev)
	return err
}

func (n *StreamNotifier) Latest(ctx context.Context) (string, error) {
	return redispkg.LastStreamID(ctx, n.client, n.stream)
}

func (n *StreamNotifier) Next(ctx context.Context, lastID string) ([]models.SyncEvent, string, error) {
	msgs, err := redispkg.ReadFromStream(ctx, n.client, n.stream, lastID, 10, n.block)
	if err != nil {
		return nil, lastID, err
	}
	events := make([]models.SyncEvent, 0, len(msgs))
	for _, m := range msgs {
		lastID = m.ID
		var ev models.SyncEvent
		if err := m.DecodeJSON(&ev); err != nil {
			n.logger.Warn("Skipping malformed sync event", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, lastID, nil
}
