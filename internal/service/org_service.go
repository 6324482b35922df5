// Package service 组织架构查询门面
//
// 点查询不返回错误：优先读进程缓存，未命中时回源目录服务并写回缓存；
// 失败只记录日志，调用方以空值表示未知。
package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"orgcache/internal/directory"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"
	"orgcache/internal/store"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// unknownUserTTL 目录服务确认不存在的用户ID在此期间不再回源
	unknownUserTTL      = time.Minute
	unknownUserCapacity = 10000
	// userFetchTimeout 单个用户回源的超时
	userFetchTimeout = 10 * time.Second
)

// OrgService 组织架构查询服务
type OrgService struct {
	cache  *orgcache.Cache
	dir    directory.Directory
	kv     store.KV
	logger *zap.Logger

	users   singleflight.Group
	unknown *ttlcache.Cache[int, struct{}]
	ttl     func() time.Duration
}

// NewOrgService 创建查询服务
func NewOrgService(cache *orgcache.Cache, dir directory.Directory, kv store.KV, logger *zap.Logger) *OrgService {
	return &OrgService{
		cache:  cache,
		dir:    dir,
		kv:     kv,
		logger: logger,
		unknown: ttlcache.New(
			ttlcache.WithTTL[int, struct{}](unknownUserTTL),
			ttlcache.WithCapacity[int, struct{}](unknownUserCapacity),
		),
		ttl: randomTempTTL,
	}
}

// Stats 缓存状态
func (s *OrgService) Stats() orgcache.Stats {
	return s.cache.Stats()
}

// GetUser 查询用户，缓存未命中时回源；同一用户的并发回源合并为一次
func (s *OrgService) GetUser(ctx context.Context, id int) (models.User, bool) {
	if u, ok := s.cache.GetUser(id); ok {
		return u, true
	}
	if s.unknown.Has(id) {
		return models.User{}, false
	}
	v, _, _ := s.users.Do(strconv.Itoa(id), func() (any, error) {
		// 结果由所有等待者共享，不能随首个调用方取消
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), userFetchTimeout)
		defer cancel()
		users, err := s.dir.FetchUsersByIDs(ctx, []int{id})
		if err != nil {
			s.logger.Warn("Failed to fetch user", zap.Int("user_id", id), zap.Error(err))
			return nil, nil
		}
		for _, u := range users {
			if u.AccountID != id {
				continue
			}
			s.upsertUser(ctx, u)
			return u, nil
		}
		s.unknown.Set(id, struct{}{}, ttlcache.DefaultTTL)
		return nil, nil
	})
	u, ok := v.(models.User)
	return u, ok
}

// GetUserName 用户名，未知时为空
func (s *OrgService) GetUserName(ctx context.Context, id int) string {
	u, _ := s.GetUser(ctx, id)
	return u.Name
}

// GetUserMap 批量查询用户，未命中的一次性回源
func (s *OrgService) GetUserMap(ctx context.Context, ids []int) map[int]models.User {
	out := make(map[int]models.User, len(ids))
	var missing []int
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if u, ok := s.cache.GetUser(id); ok {
			out[id] = u
			continue
		}
		if s.unknown.Has(id) {
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	missing = dedupe(missing)
	users, err := s.dir.FetchUsersByIDs(ctx, missing)
	if err != nil {
		s.logger.Warn("Failed to fetch users", zap.Ints("user_ids", missing), zap.Error(err))
		return out
	}
	for _, u := range users {
		s.upsertUser(ctx, u)
		out[u.AccountID] = u
	}
	for _, id := range missing {
		if _, found := out[id]; !found {
			s.unknown.Set(id, struct{}{}, ttlcache.DefaultTTL)
		}
	}
	return out
}

// GetUserNameMap 批量查询用户名
func (s *OrgService) GetUserNameMap(ctx context.Context, ids []int) map[int]string {
	users := s.GetUserMap(ctx, ids)
	out := make(map[int]string, len(users))
	for id, u := range users {
		out[id] = u.Name
	}
	return out
}

// GetUserList 按 ids 顺序返回已知用户
func (s *OrgService) GetUserList(ctx context.Context, ids []int) []models.User {
	users := s.GetUserMap(ctx, ids)
	out := make([]models.User, 0, len(users))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// GetUserData 用户数据，未命中返回默认值
func (s *OrgService) GetUserData(id int) models.UserData {
	return s.cache.GetUserData(id)
}

// GetUserDeptID 用户所在部门，未知为 0
func (s *OrgService) GetUserDeptID(id int) int {
	return s.cache.GetUserData(id).DeptID
}

// GetUserDeptDesc 用户部门描述
func (s *OrgService) GetUserDeptDesc(id int) string {
	return s.cache.GetUserData(id).DeptDesc
}

// GetUserIDByIdentity 身份证号 → 用户ID，未知为 0
func (s *OrgService) GetUserIDByIdentity(identity string) int {
	id, _ := s.cache.UserIDByIdentity(identity)
	return id
}

// GetUserIDByUniqueCode 唯一编码 → 用户ID，未知为 0
func (s *OrgService) GetUserIDByUniqueCode(code string) int {
	id, _ := s.cache.UserIDByUniqueCode(code)
	return id
}

// GetDeptIDByUniqueCode 唯一编码 → 用户所在部门ID，未知为 0
func (s *OrgService) GetDeptIDByUniqueCode(code string) int {
	id, ok := s.cache.UserIDByUniqueCode(code)
	if !ok {
		return 0
	}
	return s.cache.GetUserData(id).DeptID
}

// GetDepartment 查询部门：内存 → Redis → 不存在
func (s *OrgService) GetDepartment(ctx context.Context, id int) (models.Department, bool) {
	return s.cache.LoadDepartment(ctx, id)
}

// GetDeptLeaderMap 部门各层级领导（含继承自祖先部门的）
func (s *OrgService) GetDeptLeaderMap(id int) map[int]models.Manager {
	return s.cache.Managers(id)
}

// GetUserLeaderMap 用户所在部门的各层级领导
func (s *OrgService) GetUserLeaderMap(userID int) map[int]models.Manager {
	data, ok := s.cache.LookupUserData(userID)
	if !ok {
		return map[int]models.Manager{}
	}
	if _, ok := s.cache.GetDepartment(data.DeptID); !ok {
		return map[int]models.Manager{}
	}
	return s.cache.Managers(data.DeptID)
}

// GetUserLeaderDesc 用户所在部门的领导描述
func (s *OrgService) GetUserLeaderDesc(userID int) string {
	data, ok := s.cache.LookupUserData(userID)
	if !ok {
		return ""
	}
	dept, ok := s.cache.GetDepartment(data.DeptID)
	if !ok {
		return ""
	}
	return dept.LeaderDesc
}

// GetUserDeptDescMap 批量查询用户部门描述，缓存中没有的一次性回源
func (s *OrgService) GetUserDeptDescMap(ctx context.Context, userIDs []int) map[int]string {
	out := make(map[int]string, len(userIDs))
	var missing []int
	for _, id := range dedupe(userIDs) {
		if desc := s.cache.GetUserData(id).DeptDesc; desc != "" {
			out[id] = desc
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}
	fetched, err := s.dir.FetchUserDeptDescs(ctx, missing)
	if err != nil {
		s.logger.Warn("Failed to fetch user department descriptions", zap.Error(err))
		return out
	}
	for id, desc := range fetched {
		out[id] = desc
	}
	return out
}

// GetDeptDescMap 批量查询部门描述，缓存中没有的一次性回源
func (s *OrgService) GetDeptDescMap(ctx context.Context, deptIDs []int) map[int]string {
	out := make(map[int]string, len(deptIDs))
	var missing []int
	for _, id := range dedupe(deptIDs) {
		if d, ok := s.cache.GetDepartment(id); ok {
			out[id] = d.Desc
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}
	fetched, err := s.dir.FetchDeptDescs(ctx, missing)
	if err != nil {
		s.logger.Warn("Failed to fetch department descriptions", zap.Error(err))
		return out
	}
	for id, desc := range fetched {
		out[id] = desc
	}
	return out
}

// GetCtiRelations CTI 系统下全部绑定关系，按外部编码排序
func (s *OrgService) GetCtiRelations(ctx context.Context, ctiCode int) []models.CtiRelate {
	all, err := s.kv.HGetAll(ctx, orgcache.CtiRelateKey(ctiCode))
	if err != nil {
		s.logger.Warn("Failed to read cti relations", zap.Int("cti_code", ctiCode), zap.Error(err))
		return []models.CtiRelate{}
	}
	out := make([]models.CtiRelate, 0, len(all))
	for f, raw := range all {
		r, err := orgcache.DecodeCtiRelate(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed cti relation", zap.String("code", f), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// GetCtiRelate 查询单个 CTI 绑定关系
func (s *OrgService) GetCtiRelate(ctx context.Context, ctiCode int, ctiUserCode string) (models.CtiRelate, bool) {
	raw, err := s.kv.HGet(ctx, orgcache.CtiRelateKey(ctiCode), ctiUserCode)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("Failed to read cti relation", zap.Int("cti_code", ctiCode), zap.Error(err))
		}
		return models.CtiRelate{}, false
	}
	r, err := orgcache.DecodeCtiRelate(raw)
	if err != nil {
		s.logger.Warn("Malformed cti relation", zap.Int("cti_code", ctiCode), zap.Error(err))
		return models.CtiRelate{}, false
	}
	return r, true
}

// GetCtiUserID CTI 外部用户编码 → 用户ID，未绑定为 0
func (s *OrgService) GetCtiUserID(ctx context.Context, ctiCode int, ctiUserCode string) int {
	r, _ := s.GetCtiRelate(ctx, ctiCode, ctiUserCode)
	return r.AccountID
}

func (s *OrgService) upsertUser(ctx context.Context, u models.User) {
	if err := s.cache.UpsertUser(ctx, u); err != nil {
		s.logger.Warn("Failed to cache user", zap.Int("user_id", u.AccountID), zap.Error(err))
	}
}

// dedupe 去重并保持首次出现的顺序
func dedupe(ids []int) []int {
	seen := mapset.NewThreadUnsafeSetWithSize[int](len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen.Add(id) {
			out = append(out, id)
		}
	}
	return out
}
