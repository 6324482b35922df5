package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"orgcache/internal/directory/directorytest"
	"orgcache/internal/leader"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"
	"orgcache/internal/service"
	"orgcache/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var testTiers = []models.ManagerTier{
	{Code: 0, Name: "TopExec", Show: true},
	{Code: 1, Name: "DeptHead", Show: true},
}

type stubSyncer struct {
	run models.SyncRun
	err error
}

func (s *stubSyncer) SyncNow(ctx context.Context) (models.SyncRun, error) { return s.run, s.err }

type stubRuns struct {
	runs  []models.SyncRun
	limit int
}

func (s *stubRuns) Recent(ctx context.Context, limit int) ([]models.SyncRun, error) {
	s.limit = limit
	return s.runs, nil
}

type testServer struct {
	mr     *miniredis.Miniredis
	dir    *directorytest.Fake
	router *Router
	syncer *stubSyncer
	runs   *stubRuns
}

func setupRouter(t *testing.T, withRuns bool) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.NewRedisKV(client)

	cache := orgcache.New(kv, leader.NewEngine(testTiers), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, cache.UpsertDepartment(ctx, models.Department{ID: 1, Name: "root", Desc: "root", Leaders: map[int]models.Leader{0: {UserID: 100, UserName: "Alice"}}}))
	require.NoError(t, cache.UpsertDepartment(ctx, models.Department{ID: 3, ParentID: 1, Seq: 1, Name: "leaf", Desc: "root/leaf", Leaders: map[int]models.Leader{1: {UserID: 200, UserName: "Bob"}}}))
	cache.ResolveLeaders()
	require.NoError(t, cache.UpsertUser(ctx, models.User{AccountID: 300, Name: "Carol", Identity: "ID300", UniqueCode: "E300"}))
	require.NoError(t, cache.UpsertUserData(ctx, models.UserData{AccountID: 300, Name: "Carol", DeptID: 3, DeptDesc: "root/leaf", ManagerCode: -1}))

	dir := directorytest.New()
	svc := service.NewOrgService(cache, dir, kv, zap.NewNop())

	ts := &testServer{mr: mr, dir: dir, syncer: &stubSyncer{}, runs: &stubRuns{}}
	var runs RunLister
	if withRuns {
		runs = ts.runs
	}
	h := NewOrgHandler(svc, cache, ts.syncer, runs, zap.NewNop())
	ts.router = NewRouter(zap.NewNop())
	ts.router.RegisterHealthRoutes(h)
	ts.router.RegisterOrgRoutes(h)
	ts.router.RegisterSyncRoutes(h)
	return ts
}

func (ts *testServer) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	ts := setupRouter(t, false)

	rec := ts.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, decode[string](t, rec).Code)

	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodPost, "/healthz").Code)
}

func TestUsersRoutes(t *testing.T) {
	ts := setupRouter(t, false)

	res := decode[models.User](t, ts.do(http.MethodGet, APIPrefix+"users/300"))
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "Carol", res.Result.Name)

	data := decode[models.UserData](t, ts.do(http.MethodGet, APIPrefix+"users/300/data"))
	assert.Equal(t, ResultSuccess, data.Code)
	assert.Equal(t, 3, data.Result.DeptID)

	leaders := decode[leadersView](t, ts.do(http.MethodGet, APIPrefix+"users/300/leaders"))
	assert.Equal(t, ResultSuccess, leaders.Code)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", leaders.Result.Desc)
	assert.Equal(t, "root", leaders.Result.Managers[0].Name)
	assert.Equal(t, "Bob", leaders.Result.Managers[1].UserName)
}

func TestUsersRoutes_Failures(t *testing.T) {
	ts := setupRouter(t, false)

	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"users/abc")).Code)
	// 目录服务中也不存在
	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"users/404")).Code)
	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"users/404/data")).Code)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, APIPrefix+"users/300/unknown").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, APIPrefix+"users/").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodDelete, APIPrefix+"users/300").Code)
}

func TestDepartmentsRoutes(t *testing.T) {
	ts := setupRouter(t, false)
	ts.dir.DeptUserIDs = map[int][]int{3: {300}}
	ts.dir.AllUserIDs = map[int][]int{1: {100, 300}}
	ts.dir.Children = map[int][]models.DepartmentRef{1: {{ID: 3, ParentID: 1, Name: "leaf"}}}

	dept := decode[models.Department](t, ts.do(http.MethodGet, APIPrefix+"departments/3"))
	assert.Equal(t, ResultSuccess, dept.Code)
	assert.Equal(t, "leaf", dept.Result.Name)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", dept.Result.LeaderDesc)

	leaders := decode[leadersView](t, ts.do(http.MethodGet, APIPrefix+"departments/3/leaders"))
	assert.Len(t, leaders.Result.Managers, 2)
	assert.Equal(t, "TopExec:Alice/DeptHead:Bob", leaders.Result.Desc)

	ids := decode[[]int](t, ts.do(http.MethodGet, APIPrefix+"departments/3/user-ids"))
	assert.Equal(t, []int{300}, ids.Result)
	all := decode[[]int](t, ts.do(http.MethodGet, APIPrefix+"departments/1/user-ids?all=true"))
	assert.Equal(t, []int{100, 300}, all.Result)

	children := decode[[]models.DepartmentRef](t, ts.do(http.MethodGet, APIPrefix+"departments/1/children"))
	require.Len(t, children.Result, 1)
	assert.Equal(t, 3, children.Result[0].ID)

	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"departments/99")).Code)
	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"departments/-1")).Code)
}

func TestDepartmentsExport(t *testing.T) {
	ts := setupRouter(t, false)

	rec := ts.do(http.MethodGet, APIPrefix+"departments/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "departments.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("departments")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "root", rows[1][2])
	assert.Equal(t, "leaf", rows[2][2])
}

func TestCtiRoutes(t *testing.T) {
	ts := setupRouter(t, false)
	ts.mr.HSet(orgcache.CtiRelateKey(12), "agent-1", `{"code":"agent-1","ehrId":"E300","accountId":300}`)

	rel := decode[[]models.CtiRelate](t, ts.do(http.MethodGet, APIPrefix+"cti/12/relations"))
	require.Len(t, rel.Result, 1)
	assert.Equal(t, 300, rel.Result[0].AccountID)

	one := decode[models.CtiRelate](t, ts.do(http.MethodGet, APIPrefix+"cti/12/users/agent-1"))
	assert.Equal(t, ResultSuccess, one.Code)
	assert.Equal(t, "E300", one.Result.EhrID)

	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"cti/12/users/nobody")).Code)
	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodGet, APIPrefix+"cti/x/relations")).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, APIPrefix+"cti/12").Code)
}

func TestCacheStats(t *testing.T) {
	ts := setupRouter(t, false)

	stats := decode[orgcache.Stats](t, ts.do(http.MethodGet, APIPrefix+"cache/stats"))
	assert.Equal(t, ResultSuccess, stats.Code)
	assert.Equal(t, 1, stats.Result.Users)
	assert.Equal(t, 2, stats.Result.Departments)
}

func TestSyncRoutes(t *testing.T) {
	ts := setupRouter(t, true)
	id := uuid.New()
	ts.syncer.run = models.SyncRun{RunID: id, Status: models.SyncStatusSuccess, Departments: 2}
	ts.runs.runs = []models.SyncRun{{RunID: id, Status: models.SyncStatusSuccess}}

	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodGet, APIPrefix+"sync").Code)

	run := decode[models.SyncRun](t, ts.do(http.MethodPost, APIPrefix+"sync"))
	assert.Equal(t, ResultSuccess, run.Code)
	assert.Equal(t, id, run.Result.RunID)

	ts.syncer.err = errors.New("directory down")
	assert.Equal(t, ResultError, decode[any](t, ts.do(http.MethodPost, APIPrefix+"sync")).Code)

	runs := decode[[]models.SyncRun](t, ts.do(http.MethodGet, APIPrefix+"sync/runs?limit=5"))
	require.Len(t, runs.Result, 1)
	assert.Equal(t, 5, ts.runs.limit)
}

func TestSyncRuns_DisabledWithoutDatabase(t *testing.T) {
	ts := setupRouter(t, false)

	rec := ts.do(http.MethodGet, APIPrefix+"sync/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ResultError, decode[any](t, rec).Code)
}
