package syncer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"orgcache/internal/directory/directorytest"
	"orgcache/internal/leader"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"
	"orgcache/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTiers = []models.ManagerTier{
	{Code: 0, Name: "TopExec", Show: true},
	{Code: 1, Name: "DeptHead", Show: true},
}

var baseTime = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func post(title string) *models.Post {
	return &models.Post{Post: title, Position: "P-" + title, StandardPost: "S-" + title}
}

func newFakeDirectory() *directorytest.Fake {
	dir := directorytest.New()
	dir.Departments = []models.DepartmentRef{
		{ID: 1, Name: "root", Desc: "root", Seq: 1},
		{ID: 2, ParentID: 1, Name: "mid", Desc: "root/mid", Seq: 2},
		{ID: 3, ParentID: 2, Name: "leaf", Desc: "root/mid/leaf", Seq: 3},
	}
	dir.Details = []models.UserDetail{
		{User: models.User{AccountID: 100, Name: "Alice", UniqueCode: "E100"}, DepartmentID: 1, IsAlive: true, Post: post("TopExec")},
		{User: models.User{AccountID: 200, Name: "Bob", UniqueCode: "E200"}, DepartmentID: 3, IsAlive: true, IsLeader: true, Post: post("DeptHead")},
		{User: models.User{AccountID: 300, Name: "Carol"}, DepartmentID: 3, IsAlive: true, Post: post("Agent")},
		{User: models.User{AccountID: 400, Name: "Dave"}, DepartmentID: 0, IsAlive: true, Post: post("Agent")},
		{User: models.User{AccountID: 500, Name: "Eve"}, DepartmentID: 3, IsAlive: false, Post: post("DeptHead")},
		{User: models.User{AccountID: 600, Name: "Frank"}, DepartmentID: 3, IsAlive: true},
	}
	dir.Users = []models.User{
		{AccountID: 100, Name: "Alice", Identity: "ID100", UniqueCode: "E100"},
		{AccountID: 200, Name: "Bob", Identity: "ID200", UniqueCode: "E200"},
		{AccountID: 300, Name: "Carol", Identity: "ID300", UniqueCode: "E300"},
	}
	dir.Cti = map[int][]models.CtiRelate{
		12: {{Code: "agent-1", EhrID: "E300", AccountID: 300}},
	}
	return dir
}

type testEnv struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	kv     store.KV
	clock  *time.Time
}

func newEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := baseTime
	return &testEnv{mr: mr, client: client, kv: store.NewRedisKV(client), clock: &clock}
}

func (e *testEnv) scheduler(dir *directorytest.Fake, rec RunRecorder, enabled bool) (*Scheduler, *orgcache.Cache) {
	cache := orgcache.New(e.kv, leader.NewEngine(testTiers), zap.NewNop())
	s := New(cache, dir, e.kv, rec, Options{
		Enabled:       enabled,
		Interval:      time.Hour,
		RefreshWindow: time.Hour,
		CtiCodes:      []int{12},
		Instance:      "test",
	}, zap.NewNop())
	s.now = func() time.Time { return *e.clock }
	return s, cache
}

type memRecorder struct {
	mu   sync.Mutex
	runs []models.SyncRun
}

func (m *memRecorder) Record(ctx context.Context, run models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func TestTick_SyncsWhenStale(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, cache := env.scheduler(dir, nil, true)

	assert.Equal(t, OutcomeSynced, s.Tick(context.Background()))

	leaf, ok := cache.GetDepartment(3)
	require.True(t, ok)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", leaf.LeaderDesc)
	assert.Equal(t, "root", cache.Managers(3)[0].Name)
	assert.Equal(t, "E200", cache.Managers(3)[1].UniqueCode)

	carol := cache.GetUserData(300)
	assert.Equal(t, 3, carol.DeptID)
	assert.Equal(t, "leaf", carol.DeptName)
	assert.Equal(t, "root/mid/leaf", carol.DeptDesc)
	assert.Equal(t, "P-Agent", carol.Position)
	assert.Equal(t, models.InvalidManagerCode, carol.ManagerCode)

	bob := cache.GetUserData(200)
	assert.Equal(t, 1, bob.ManagerCode)
	assert.True(t, bob.IsLeader)

	for _, skipped := range []int{400, 500, 600} {
		_, ok := cache.LookupUserData(skipped)
		assert.False(t, ok, "user %d should be skipped", skipped)
	}

	id, ok := cache.UserIDByUniqueCode("E300")
	require.True(t, ok)
	assert.Equal(t, 300, id)

	ts, err := env.mr.Get(orgcache.KeyRequestTime)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(baseTime.UnixMilli(), 10), ts)

	assert.Contains(t, env.mr.HGet(orgcache.CtiRelateKey(12), "agent-1"), `"accountId":300`)

	// 6 条明细、页大小 2：3 页 + 1 个空页
	assert.Equal(t, 4, dir.Calls("FetchUserDetailsPage"))
}

func TestTick_SkipsWhenFresh(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, _ := env.scheduler(dir, nil, true)
	ctx := context.Background()

	require.Equal(t, OutcomeSynced, s.Tick(ctx))

	*env.clock = baseTime.Add(30 * time.Minute)
	assert.Equal(t, OutcomeSkipped, s.Tick(ctx))
	assert.Equal(t, 1, dir.Calls("FetchAllDepartments"))
}

func TestTick_ResyncsAfterWindow(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, _ := env.scheduler(dir, nil, true)
	ctx := context.Background()

	require.Equal(t, OutcomeSynced, s.Tick(ctx))

	*env.clock = baseTime.Add(time.Hour)
	assert.Equal(t, OutcomeSynced, s.Tick(ctx))
	assert.Equal(t, 2, dir.Calls("FetchAllDepartments"))
}

func TestTick_FailureDoesNotAdvanceTimestamp(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	dir.Errors = map[string]error{"FetchUsersPage": errors.New("sso unavailable")}
	rec := &memRecorder{}
	s, _ := env.scheduler(dir, rec, true)
	ctx := context.Background()

	assert.Equal(t, OutcomeFailed, s.Tick(ctx))
	assert.False(t, env.mr.Exists(orgcache.KeyRequestTime))
	require.Len(t, rec.runs, 1)
	assert.Equal(t, models.SyncStatusFailed, rec.runs[0].Status)
	assert.Contains(t, rec.runs[0].Error, "sso unavailable")

	// 下一次 tick 重新完整同步
	dir.Errors = nil
	assert.Equal(t, OutcomeSynced, s.Tick(ctx))
	assert.True(t, env.mr.Exists(orgcache.KeyRequestTime))
	assert.Equal(t, 2, dir.Calls("FetchAllDepartments"))
}

func TestTick_RecordsSuccessfulRun(t *testing.T) {
	env := newEnv(t)
	rec := &memRecorder{}
	s, _ := env.scheduler(newFakeDirectory(), rec, true)

	require.Equal(t, OutcomeSynced, s.Tick(context.Background()))
	require.Len(t, rec.runs, 1)

	run := rec.runs[0]
	assert.Equal(t, models.SyncStatusSuccess, run.Status)
	assert.Equal(t, "test", run.Instance)
	assert.Equal(t, 3, run.Departments)
	assert.Equal(t, 3, run.UserDetails)
	assert.Equal(t, 3, run.Users)
	assert.Equal(t, 1, run.CtiRelations)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", run.RunID.String())
}

func TestTick_OtherInstanceReloadsInsteadOfSyncing(t *testing.T) {
	env := newEnv(t)
	dirA := newFakeDirectory()
	dirB := newFakeDirectory()
	a, _ := env.scheduler(dirA, nil, true)
	b, cacheB := env.scheduler(dirB, nil, true)
	ctx := context.Background()

	require.Equal(t, OutcomeSynced, a.Tick(ctx))
	assert.Equal(t, OutcomeReloaded, b.Tick(ctx))
	assert.Equal(t, 0, dirB.Calls("FetchAllDepartments"))

	leaf, ok := cacheB.GetDepartment(3)
	require.True(t, ok)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", leaf.LeaderDesc)

	// 已加载过同一时间戳，不再重复加载
	assert.Equal(t, OutcomeSkipped, b.Tick(ctx))
}

type blockingDirectory struct {
	*directorytest.Fake
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDirectory) FetchAllDepartments(ctx context.Context) ([]models.DepartmentRef, error) {
	close(b.entered)
	<-b.release
	return b.Fake.FetchAllDepartments(ctx)
}

func TestTick_ConcurrentTicksAreCoalesced(t *testing.T) {
	env := newEnv(t)
	fake := newFakeDirectory()
	dir := &blockingDirectory{Fake: fake, entered: make(chan struct{}), release: make(chan struct{})}
	cache := orgcache.New(env.kv, leader.NewEngine(testTiers), zap.NewNop())
	s := New(cache, dir, env.kv, nil, Options{Enabled: true, CtiCodes: []int{12}}, zap.NewNop())
	ctx := context.Background()

	first := make(chan Outcome, 1)
	go func() { first <- s.Tick(ctx) }()

	<-dir.entered
	assert.Equal(t, OutcomeBusy, s.Tick(ctx))
	close(dir.release)

	assert.Equal(t, OutcomeSynced, <-first)
	assert.Equal(t, 1, fake.Calls("FetchAllDepartments"))
}

func TestTick_DisabledOnlyReloads(t *testing.T) {
	env := newEnv(t)
	writer, _ := env.scheduler(newFakeDirectory(), nil, true)
	require.Equal(t, OutcomeSynced, writer.Tick(context.Background()))

	// 时间戳过期后，未开启同步的实例也只从 Redis 加载
	*env.clock = baseTime.Add(2 * time.Hour)
	dir := newFakeDirectory()
	reader, cache := env.scheduler(dir, nil, false)

	assert.Equal(t, OutcomeReloaded, reader.Tick(context.Background()))
	assert.Equal(t, 0, dir.Calls("FetchAllDepartments"))
	assert.Equal(t, 3, cache.Stats().Departments)
}

func TestTick_CancelledContextAbandonsPass(t *testing.T) {
	env := newEnv(t)
	s, _ := env.scheduler(newFakeDirectory(), nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeFailed, s.Tick(ctx))
	assert.False(t, env.mr.Exists(orgcache.KeyRequestTime))
}

func TestSyncNow_IgnoresGate(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, _ := env.scheduler(dir, nil, true)
	ctx := context.Background()

	require.Equal(t, OutcomeSynced, s.Tick(ctx))
	run, err := s.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, run.Status)
	assert.Equal(t, 2, dir.Calls("FetchAllDepartments"))
}

func TestStartStop(t *testing.T) {
	env := newEnv(t)
	s, cache := env.scheduler(newFakeDirectory(), nil, true)

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return env.mr.Exists(orgcache.KeyRequestTime)
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	// 重复 Stop 无副作用
	require.NoError(t, s.Stop(stopCtx))
	assert.Equal(t, 3, cache.Stats().Departments)
}

func TestTick_MalformedTimestampTreatedAsStale(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.mr.Set(orgcache.KeyRequestTime, "yesterday"))
	s, _ := env.scheduler(newFakeDirectory(), nil, true)

	assert.Equal(t, OutcomeSynced, s.Tick(context.Background()))
}

func TestTick_RestartWithDirectoryDownServesStaleMirror(t *testing.T) {
	env := newEnv(t)
	a, _ := env.scheduler(newFakeDirectory(), nil, true)
	ctx := context.Background()
	require.Equal(t, OutcomeSynced, a.Tick(ctx))

	// 镜像过期后重启，目录服务不可用
	*env.clock = baseTime.Add(2 * time.Hour)
	down := newFakeDirectory()
	down.Errors = map[string]error{"FetchAllDepartments": errors.New("sso unavailable")}
	b, cacheB := env.scheduler(down, nil, true)

	assert.Equal(t, OutcomeFailed, b.Tick(ctx))
	assert.Equal(t, 3, cacheB.Stats().Departments)
	leaf, ok := cacheB.GetDepartment(3)
	require.True(t, ok)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", leaf.LeaderDesc)
	assert.Equal(t, "E200", cacheB.Managers(3)[1].UniqueCode)
	_, ok = cacheB.GetUser(300)
	assert.True(t, ok)

	// 镜像只加载一次，之后每个 tick 只重试同步
	assert.Equal(t, OutcomeFailed, b.Tick(ctx))
	down.Errors = nil
	assert.Equal(t, OutcomeSynced, b.Tick(ctx))
	assert.Equal(t, 3, down.Calls("FetchAllDepartments"))
}

func TestTick_SyncPrunesRemovedRecords(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, cache := env.scheduler(dir, nil, true)
	ctx := context.Background()
	require.Equal(t, OutcomeSynced, s.Tick(ctx))
	require.NotEmpty(t, cache.Managers(3))

	// leaf 部门撤销，Bob 离职，CTI 解绑 agent-1 改绑 agent-2
	dir.Departments = dir.Departments[:2]
	dir.Details = dir.Details[:1]
	dir.Cti = map[int][]models.CtiRelate{
		12: {{Code: "agent-2", EhrID: "E100", AccountID: 100}},
	}
	*env.clock = baseTime.Add(time.Hour)
	require.Equal(t, OutcomeSynced, s.Tick(ctx))

	_, ok := cache.GetDepartment(3)
	assert.False(t, ok)
	assert.Empty(t, cache.Managers(3))
	assert.Equal(t, 2, cache.Stats().Departments)
	assert.Empty(t, env.mr.HGet(orgcache.KeyDeptMap, "3"))

	_, ok = cache.LookupUserData(200)
	assert.False(t, ok)
	_, ok = cache.LookupUserData(300)
	assert.False(t, ok)
	_, ok = cache.LookupUserData(100)
	assert.True(t, ok)
	assert.Empty(t, env.mr.HGet(orgcache.KeyUserDataMap, "200"))

	assert.Empty(t, env.mr.HGet(orgcache.CtiRelateKey(12), "agent-1"))
	assert.NotEmpty(t, env.mr.HGet(orgcache.CtiRelateKey(12), "agent-2"))

	// 其他实例重新加载时也看不到已删除的记录
	other, otherCache := env.scheduler(newFakeDirectory(), nil, true)
	require.Equal(t, OutcomeReloaded, other.Tick(ctx))
	_, ok = otherCache.GetDepartment(3)
	assert.False(t, ok)
}

func TestTick_EmptyDirectoryResponseKeepsMirror(t *testing.T) {
	env := newEnv(t)
	dir := newFakeDirectory()
	s, cache := env.scheduler(dir, nil, true)
	ctx := context.Background()
	require.Equal(t, OutcomeSynced, s.Tick(ctx))

	dir.Departments = nil
	dir.Details = nil
	dir.Cti = nil
	*env.clock = baseTime.Add(time.Hour)
	require.Equal(t, OutcomeSynced, s.Tick(ctx))

	assert.Equal(t, 3, cache.Stats().Departments)
	_, ok := cache.LookupUserData(200)
	assert.True(t, ok)
	assert.NotEmpty(t, env.mr.HGet(orgcache.KeyDeptMap, "3"))
	assert.NotEmpty(t, env.mr.HGet(orgcache.CtiRelateKey(12), "agent-1"))
}
