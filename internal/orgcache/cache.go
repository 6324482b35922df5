// Package orgcache 进程内组织架构缓存
//
// 内存映射由 Redis hash 镜像整体重建（LoadAll），写入走 write-through：
// 先写 Redis，再更新内存及二级索引。LoadAll 进行期间的写入会记入日志，
// 替换快照时重放到新快照上，避免被加载开始前读到的旧数据覆盖。
package orgcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"orgcache/internal/leader"
	"orgcache/internal/models"
	"orgcache/internal/store"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// snapshot 一次完整加载得到的映射集合
type snapshot struct {
	users        map[int]models.User
	byIdentity   map[string]int
	byUniqueCode map[string]int
	userData     map[int]models.UserData
	depts        map[int]models.Department
	managers     map[int]map[int]models.Manager
}

func newSnapshot() *snapshot {
	return &snapshot{
		users:        make(map[int]models.User),
		byIdentity:   make(map[string]int),
		byUniqueCode: make(map[string]int),
		userData:     make(map[int]models.UserData),
		depts:        make(map[int]models.Department),
		managers:     make(map[int]map[int]models.Manager),
	}
}

func (s *snapshot) putUser(u models.User) {
	if old, ok := s.users[u.AccountID]; ok {
		if s.byIdentity[old.Identity] == u.AccountID {
			delete(s.byIdentity, old.Identity)
		}
		if s.byUniqueCode[old.UniqueCode] == u.AccountID {
			delete(s.byUniqueCode, old.UniqueCode)
		}
	}
	s.users[u.AccountID] = u
	if u.Identity != "" {
		s.byIdentity[u.Identity] = u.AccountID
	}
	if u.UniqueCode != "" {
		s.byUniqueCode[u.UniqueCode] = u.AccountID
	}
}

// applyResolution 写入解析结果，已不存在的部门忽略
func (s *snapshot) applyResolution(res map[int]leader.Resolution) {
	managers := make(map[int]map[int]models.Manager, len(res))
	for id, r := range res {
		d, ok := s.depts[id]
		if !ok {
			continue
		}
		d.LeaderDesc = r.Desc
		s.depts[id] = d
		managers[id] = r.Managers
	}
	s.managers = managers
}

// Stats 各映射大小
type Stats struct {
	Users       int       `json:"users"`
	Identities  int       `json:"identities"`
	UniqueCodes int       `json:"uniqueCodes"`
	UserData    int       `json:"userData"`
	Departments int       `json:"departments"`
	Resolved    int       `json:"resolved"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// Cache 组织架构进程缓存
type Cache struct {
	kv     store.KV
	engine *leader.Engine
	logger *zap.Logger

	mu       sync.RWMutex
	snap     *snapshot
	loadedAt time.Time
	// loading 进行中的 LoadAll 数量，大于 0 时写入同时追加到 pending
	loading int
	pending []func(*snapshot)
}

// New 创建缓存，engine 为空时使用默认层级表
func New(kv store.KV, engine *leader.Engine, logger *zap.Logger) *Cache {
	if engine == nil {
		engine = leader.NewEngine(nil)
	}
	return &Cache{
		kv:     kv,
		engine: engine,
		logger: logger,
		snap:   newSnapshot(),
	}
}

// Engine 返回领导解析引擎
func (c *Cache) Engine() *leader.Engine { return c.engine }

// LoadAll 从 Redis 镜像整体重建缓存并完成领导解析
// 构建过程不持有锁，最后一次性替换；读者只会看到旧的或新的完整状态
func (c *Cache) LoadAll(ctx context.Context) error {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()
	defer c.endLoad()

	snap := newSnapshot()

	users, err := c.kv.HGetAll(ctx, KeyUserMap)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	var malformed *multierror.Error
	for f, raw := range users {
		u, err := decodeUser(raw)
		if err != nil {
			malformed = multierror.Append(malformed, fmt.Errorf("user %s: %w", f, err))
			continue
		}
		snap.putUser(u)
	}

	data, err := c.kv.HGetAll(ctx, KeyUserDataMap)
	if err != nil {
		return fmt.Errorf("failed to load user data: %w", err)
	}
	for f, raw := range data {
		d, err := decodeUserData(raw)
		if err != nil {
			malformed = multierror.Append(malformed, fmt.Errorf("user data %s: %w", f, err))
			continue
		}
		snap.userData[d.AccountID] = d
	}

	depts, err := c.kv.HGetAll(ctx, KeyDeptMap)
	if err != nil {
		return fmt.Errorf("failed to load departments: %w", err)
	}
	for f, raw := range depts {
		d, err := decodeDepartment(raw)
		if err != nil {
			malformed = multierror.Append(malformed, fmt.Errorf("department %s: %w", f, err))
			continue
		}
		snap.depts[d.ID] = d
	}

	if err := malformed.ErrorOrNil(); err != nil {
		c.logger.Warn("Skipped malformed cache records",
			zap.Int("count", len(malformed.Errors)),
			zap.Error(err),
		)
	}

	snap.applyResolution(c.engine.ResolveAll(snap.depts))

	now := time.Now()
	c.mu.Lock()
	if len(c.pending) > 0 {
		for _, fn := range c.pending {
			fn(snap)
		}
		snap.applyResolution(c.engine.ResolveAll(snap.depts))
	}
	c.snap = snap
	c.loadedAt = now
	c.mu.Unlock()

	c.logger.Info("Organization cache loaded",
		zap.Int("users", len(snap.users)),
		zap.Int("user_data", len(snap.userData)),
		zap.Int("departments", len(snap.depts)),
	)
	return nil
}

func (c *Cache) endLoad() {
	c.mu.Lock()
	c.loading--
	if c.loading == 0 {
		c.pending = nil
	}
	c.mu.Unlock()
}

// apply 在当前快照上执行写入；有加载进行中时记入 pending
func (c *Cache) apply(fn func(*snapshot)) {
	c.mu.Lock()
	fn(c.snap)
	if c.loading > 0 {
		c.pending = append(c.pending, fn)
	}
	c.mu.Unlock()
}

// LoadedAt 最近一次 LoadAll 完成时间，未加载时为零值
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// GetUser 查询用户
func (c *Cache) GetUser(id int) (models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.snap.users[id]
	return u, ok
}

// UserIDByIdentity 身份证号 → 用户ID
func (c *Cache) UserIDByIdentity(identity string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.snap.byIdentity[identity]
	return id, ok
}

// UserIDByUniqueCode 唯一编码 → 用户ID
func (c *Cache) UserIDByUniqueCode(code string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.snap.byUniqueCode[code]
	return id, ok
}

// GetUserData 查询用户数据，未命中返回默认值
func (c *Cache) GetUserData(id int) models.UserData {
	d, _ := c.LookupUserData(id)
	return d
}

// LookupUserData 查询用户数据并返回是否命中
func (c *Cache) LookupUserData(id int) (models.UserData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.snap.userData[id]
	if !ok {
		return models.DefaultUserData(), false
	}
	return d, true
}

// GetDepartment 查询部门（返回副本）
func (c *Cache) GetDepartment(id int) (models.Department, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.snap.depts[id]
	if !ok {
		return models.Department{}, false
	}
	return copyDepartment(d), true
}

// Departments 全部部门，按 Seq、ID 排序
func (c *Cache) Departments() []models.Department {
	c.mu.RLock()
	out := make([]models.Department, 0, len(c.snap.depts))
	for _, d := range c.snap.depts {
		out = append(out, copyDepartment(d))
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Managers 部门解析后的各层级领导，未解析时返回空 map
func (c *Cache) Managers(deptID int) map[int]models.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.snap.managers[deptID]
	out := make(map[int]models.Manager, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// UpsertUser 写入用户（先 Redis 后内存）
func (c *Cache) UpsertUser(ctx context.Context, u models.User) error {
	raw, err := encodeUser(u)
	if err != nil {
		return err
	}
	if err := c.kv.HSet(ctx, KeyUserMap, field(u.AccountID), raw); err != nil {
		return fmt.Errorf("failed to persist user %d: %w", u.AccountID, err)
	}
	c.apply(func(s *snapshot) { s.putUser(u) })
	return nil
}

// UpsertUserData 写入用户数据（先 Redis 后内存）
func (c *Cache) UpsertUserData(ctx context.Context, d models.UserData) error {
	raw, err := encodeUserData(d)
	if err != nil {
		return err
	}
	if err := c.kv.HSet(ctx, KeyUserDataMap, field(d.AccountID), raw); err != nil {
		return fmt.Errorf("failed to persist user data %d: %w", d.AccountID, err)
	}
	c.apply(func(s *snapshot) { s.userData[d.AccountID] = d })
	return nil
}

// UpsertDepartment 写入部门（先 Redis 后内存）
// 不触发领导解析，全部部门写入后由调用方执行 ResolveLeaders
func (c *Cache) UpsertDepartment(ctx context.Context, d models.Department) error {
	raw, err := encodeDepartment(d)
	if err != nil {
		return err
	}
	if err := c.kv.HSet(ctx, KeyDeptMap, field(d.ID), raw); err != nil {
		return fmt.Errorf("failed to persist department %d: %w", d.ID, err)
	}
	d = copyDepartment(d)
	c.apply(func(s *snapshot) {
		put := d
		if old, ok := s.depts[put.ID]; ok && put.LeaderDesc == "" {
			put.LeaderDesc = old.LeaderDesc
		}
		s.depts[put.ID] = put
	})
	return nil
}

// RetainDepartments 删除不在 keep 中的部门（Redis 与内存），返回删除数量
// 被删部门的领导解析一并清除
func (c *Cache) RetainDepartments(ctx context.Context, keep mapset.Set[int]) (int, error) {
	return c.retain(ctx, KeyDeptMap, keep,
		func(s *snapshot) []int { return mapKeys(s.depts) },
		func(s *snapshot, id int) {
			delete(s.depts, id)
			delete(s.managers, id)
		},
	)
}

// RetainUserData 删除不在 keep 中的用户数据（Redis 与内存），返回删除数量
func (c *Cache) RetainUserData(ctx context.Context, keep mapset.Set[int]) (int, error) {
	return c.retain(ctx, KeyUserDataMap, keep,
		func(s *snapshot) []int { return mapKeys(s.userData) },
		func(s *snapshot, id int) { delete(s.userData, id) },
	)
}

// retain Redis 与内存中的记录取并集，删除 keep 之外的部分（非数字 field 视为脏数据一并删除）
func (c *Cache) retain(ctx context.Context, key string, keep mapset.Set[int],
	ids func(*snapshot) []int, drop func(*snapshot, int)) (int, error) {
	stored, err := c.kv.HGetAll(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	stale := mapset.NewThreadUnsafeSet[string]()
	for f := range stored {
		if id, err := strconv.Atoi(f); err != nil || !keep.Contains(id) {
			stale.Add(f)
		}
	}
	c.mu.RLock()
	for _, id := range ids(c.snap) {
		if !keep.Contains(id) {
			stale.Add(field(id))
		}
	}
	c.mu.RUnlock()
	if stale.Cardinality() == 0 {
		return 0, nil
	}

	fields := stale.ToSlice()
	if err := c.kv.HDel(ctx, key, fields...); err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", key, err)
	}
	c.apply(func(s *snapshot) {
		for _, f := range fields {
			if id, err := strconv.Atoi(f); err == nil {
				drop(s, id)
			}
		}
	})
	return len(fields), nil
}

// LoadDepartment 内存未命中时从 Redis 读取部门并放入内存
func (c *Cache) LoadDepartment(ctx context.Context, id int) (models.Department, bool) {
	if d, ok := c.GetDepartment(id); ok {
		return d, true
	}
	raw, err := c.kv.HGet(ctx, KeyDeptMap, field(id))
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			c.logger.Warn("Failed to read department from redis", zap.Int("dept_id", id), zap.Error(err))
		}
		return models.Department{}, false
	}
	d, err := decodeDepartment(raw)
	if err != nil {
		c.logger.Warn("Malformed department record", zap.Int("dept_id", id), zap.Error(err))
		return models.Department{}, false
	}
	c.mu.Lock()
	if _, ok := c.snap.depts[id]; !ok {
		c.snap.depts[id] = d
	}
	c.mu.Unlock()
	return copyDepartment(d), true
}

// ResolveLeaders 基于当前部门快照重新计算全部领导解析
func (c *Cache) ResolveLeaders() {
	c.mu.RLock()
	depts := make(map[int]models.Department, len(c.snap.depts))
	for id, d := range c.snap.depts {
		depts[id] = d
	}
	c.mu.RUnlock()

	res := c.engine.ResolveAll(depts)

	c.mu.Lock()
	c.snap.applyResolution(res)
	c.mu.Unlock()

	c.logger.Debug("Leaders resolved", zap.Int("departments", len(res)))
}

// Stats 缓存状态
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Users:       len(c.snap.users),
		Identities:  len(c.snap.byIdentity),
		UniqueCodes: len(c.snap.byUniqueCode),
		UserData:    len(c.snap.userData),
		Departments: len(c.snap.depts),
		Resolved:    len(c.snap.managers),
		LoadedAt:    c.loadedAt,
	}
}

// LogStats 输出缓存状态
func (c *Cache) LogStats() {
	s := c.Stats()
	c.logger.Info("Organization cache state",
		zap.Int("users", s.Users),
		zap.Int("identities", s.Identities),
		zap.Int("unique_codes", s.UniqueCodes),
		zap.Int("user_data", s.UserData),
		zap.Int("departments", s.Departments),
		zap.Int("resolved", s.Resolved),
	)
}

func mapKeys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func copyDepartment(d models.Department) models.Department {
	leaders := make(map[int]models.Leader, len(d.Leaders))
	for k, v := range d.Leaders {
		leaders[k] = v
	}
	d.Leaders = leaders
	return d
}
