// Package syncer 组织架构定时同步
//
// 各实例通过 Redis 中的共享同步时间戳（毫秒）判断是否需要同步：
// 时间戳在刷新窗口内则跳过。这里没有分布式锁，多实例同时过期时
// 可能重复同步，各自完成后都会推进时间戳，后续实例自然跳过。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"orgcache/internal/directory"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"
	"orgcache/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome 单次检查的结果
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeReloaded Outcome = "reloaded"
	OutcomeBusy     Outcome = "busy"
	OutcomeFailed   Outcome = "failed"
)

// RunRecorder 同步审计（可选）
type RunRecorder interface {
	Record(ctx context.Context, run models.SyncRun) error
}

// Options 调度参数
type Options struct {
	// Enabled 为 false 时只从 Redis 重新加载，不向目录服务拉取
	Enabled       bool
	Interval      time.Duration
	RefreshWindow time.Duration
	CtiCodes      []int
	// Instance 实例标识，用于审计记录和忽略自身发出的通知
	Instance string
	// Notifier 同步完成通知，可为 nil
	Notifier Notifier
}

// Scheduler 同步调度器
type Scheduler struct {
	cache    *orgcache.Cache
	dir      directory.Directory
	kv       store.KV
	recorder RunRecorder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	running atomic.Bool
	// applied 内存中数据对应的共享时间戳（毫秒）
	applied atomic.Int64
	loaded  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建调度器，recorder 可为 nil
func New(cache *orgcache.Cache, dir directory.Directory, kv store.KV, recorder RunRecorder, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Minute
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = 60 * time.Minute
	}
	if opts.Instance == "" {
		opts.Instance, _ = os.Hostname()
	}
	return &Scheduler{
		cache:    cache,
		dir:      dir,
		kv:       kv,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 启动后台循环，立即执行第一次检查
// 配置了 Notifier 时同时监听其他实例的同步通知
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting organization sync scheduler",
		zap.Bool("sync_enabled", s.opts.Enabled),
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("refresh_window", s.opts.RefreshWindow),
		zap.Bool("notifications", s.opts.Notifier != nil),
	)

	// 在返回前确定监听起点，之后发布的通知都不会漏掉
	lastID := ""
	if s.opts.Notifier != nil {
		id, err := s.opts.Notifier.Latest(ctx)
		if err != nil {
			s.logger.Warn("Failed to read sync event position", zap.Error(err))
		}
		lastID = id
	}
	go s.loop(loopCtx, lastID, s.done)
}

func (s *Scheduler) loop(ctx context.Context, lastID string, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	defer wg.Wait()
	if s.opts.Notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watch(ctx, lastID)
		}()
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// watch 收到其他实例的同步通知后立即检查，使非同步实例尽快从 Redis 重新加载
func (s *Scheduler) watch(ctx context.Context, lastID string) {
	for ctx.Err() == nil {
		if lastID == "" {
			id, err := s.opts.Notifier.Latest(ctx)
			if err != nil {
				s.logger.Warn("Failed to read sync event position", zap.Error(err))
				sleepCtx(ctx, time.Second)
				continue
			}
			lastID = id
		}

		events, next, err := s.opts.Notifier.Next(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Failed to read sync events", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		lastID = next

		for _, ev := range events {
			if ev.Instance == s.opts.Instance {
				continue
			}
			s.logger.Info("Sync event received",
				zap.String("run_id", ev.RunID),
				zap.String("from", ev.Instance),
				zap.Int64("sync_time_ms", ev.SyncTime),
			)
			s.Tick(ctx)
			break
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Stop 停止后台循环；进行中的同步在页间观察到取消后放弃
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		s.logger.Info("Organization sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick 执行一次检查：时间戳过期则同步，否则按需从 Redis 重新加载
// 同一进程内并发的 Tick 只有一个生效，其余返回 OutcomeBusy
func (s *Scheduler) Tick(ctx context.Context) Outcome {
	if !s.running.CompareAndSwap(false, true) {
		return OutcomeBusy
	}
	defer s.running.Store(false)

	last, err := s.lastSyncTime(ctx)
	if err != nil {
		s.logger.Error("Failed to read last sync time", zap.Error(err))
		return OutcomeFailed
	}

	fresh := last > 0 && s.now().UnixMilli()-last < s.opts.RefreshWindow.Milliseconds()
	if fresh || !s.opts.Enabled {
		return s.reloadIfNewer(ctx, last)
	}

	// 重启后先加载已过期的镜像，再尝试同步
	if last > 0 && !s.loaded.Load() {
		s.warmLoad(ctx, last)
	}
	if _, err := s.sync(ctx); err != nil {
		return OutcomeFailed
	}
	return OutcomeSynced
}

// SyncNow 忽略时间戳强制同步一次
func (s *Scheduler) SyncNow(ctx context.Context) (models.SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return models.SyncRun{}, errors.New("sync already in progress")
	}
	defer s.running.Store(false)
	return s.sync(ctx)
}

// warmLoad 从过期的 Redis 镜像加载缓存，失败只记录日志
func (s *Scheduler) warmLoad(ctx context.Context, last int64) {
	if err := s.cache.LoadAll(ctx); err != nil {
		s.logger.Warn("Failed to load stale organization cache", zap.Error(err))
		return
	}
	s.applied.Store(last)
	s.loaded.Store(true)
	s.logger.Info("Loaded stale organization cache before sync", zap.Int64("last_sync_ms", last))
}

// 其他实例已完成同步时从 Redis 镜像重建本地缓存
func (s *Scheduler) reloadIfNewer(ctx context.Context, last int64) Outcome {
	if s.loaded.Load() && last <= s.applied.Load() {
		s.logger.Debug("Organization cache is fresh, skipping sync", zap.Int64("last_sync_ms", last))
		return OutcomeSkipped
	}
	if err := s.cache.LoadAll(ctx); err != nil {
		s.logger.Error("Failed to reload organization cache", zap.Error(err))
		return OutcomeFailed
	}
	s.applied.Store(last)
	s.loaded.Store(true)
	s.logger.Info("Organization cache reloaded from redis", zap.Int64("last_sync_ms", last))
	return OutcomeReloaded
}

func (s *Scheduler) sync(ctx context.Context) (models.SyncRun, error) {
	run := models.SyncRun{
		RunID:     uuid.New(),
		Instance:  s.opts.Instance,
		StartedAt: s.now(),
	}
	log := s.logger.With(zap.String("run_id", run.RunID.String()))
	log.Info("Starting organization sync")

	err := s.runPhases(ctx, &run, log)

	run.FinishedAt = s.now()
	if err != nil {
		run.Status = models.SyncStatusFailed
		run.Error = err.Error()
		log.Error("Organization sync failed",
			zap.Duration("duration", run.Duration()),
			zap.Error(err),
		)
	} else {
		run.Status = models.SyncStatusSuccess
		log.Info("Organization sync completed",
			zap.Int("departments", run.Departments),
			zap.Int("user_details", run.UserDetails),
			zap.Int("users", run.Users),
			zap.Int("cti_relations", run.CtiRelations),
			zap.Duration("duration", run.Duration()),
		)
	}
	s.record(run, log)
	if err == nil {
		s.notify(run, log)
	}
	return run, err
}

func (s *Scheduler) notify(run models.SyncRun, log *zap.Logger) {
	if s.opts.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev := models.SyncEvent{
		RunID:    run.RunID.String(),
		Instance: s.opts.Instance,
		SyncTime: s.applied.Load(),
	}
	if err := s.opts.Notifier.Publish(ctx, ev); err != nil {
		log.Warn("Failed to publish sync event", zap.Error(err))
	}
}

func (s *Scheduler) record(run models.SyncRun, log *zap.Logger) {
	if s.recorder == nil {
		return
	}
	// 审计写入不受同步上下文取消影响
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, run); err != nil {
		log.Warn("Failed to record sync run", zap.Error(err))
	}
}

func (s *Scheduler) runPhases(ctx context.Context, run *models.SyncRun, log *zap.Logger) error {
	depts, details, err := s.syncDepartments(ctx, log)
	run.Departments, run.UserDetails = depts, details
	if err != nil {
		return err
	}

	s.cache.ResolveLeaders()

	if run.Users, err = s.syncUsers(ctx); err != nil {
		return err
	}
	if run.CtiRelations, err = s.syncCti(ctx, log); err != nil {
		return err
	}

	s.cache.LogStats()

	ts := s.now().UnixMilli()
	if err := s.kv.Set(ctx, orgcache.KeyRequestTime, strconv.FormatInt(ts, 10)); err != nil {
		return fmt.Errorf("failed to save sync time: %w", err)
	}
	s.applied.Store(ts)
	s.loaded.Store(true)
	return nil
}

// lastSyncTime 读取共享同步时间戳，不存在时为 0
func (s *Scheduler) lastSyncTime(ctx context.Context) (int64, error) {
	raw, err := s.kv.Get(ctx, orgcache.KeyRequestTime)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return 0, nil
		}
		return 0, err
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// 无法解析视为从未同步
		s.logger.Warn("Malformed sync time, treating as stale", zap.String("value", raw))
		return 0, nil
	}
	return ts, nil
}
