package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"orgcache/internal/models"
	"orgcache/internal/store"

	"go.uber.org/zap"
)

// 列表类查询的短期缓存键前缀
const (
	keyDeptUserIDs    = "sso:temp:user:id:list:dept:id:"
	keyDeptUsers      = "sso:temp:user:list:dept:id:"
	keyDeptAllUserIDs = "sso:temp:user:all:id:list:dept:id:"
	keySubordinateIDs = "sso:temp:lower:id:list:user:id:"

	minTempTTL = 60 * time.Second
	maxTempTTL = 300 * time.Second
)

// randomTempTTL 在 [60s, 300s] 内随机，避免同时过期
func randomTempTTL() time.Duration {
	return minTempTTL + time.Duration(rand.Int64N(int64(maxTempTTL-minTempTTL)+1))
}

// cachedList 读短期缓存，未命中时回源并写回
// emptyIsMiss 为 true 时缓存的空列表也视为未命中
func cachedList[T any](ctx context.Context, s *OrgService, key string, emptyIsMiss bool, fetch func() ([]T, error)) []T {
	var cached []T
	err := store.GetJSON(ctx, s.kv, key, &cached)
	switch {
	case err == nil && (len(cached) > 0 || !emptyIsMiss):
		if cached == nil {
			cached = []T{}
		}
		return cached
	case err != nil && !errors.Is(err, store.ErrMiss):
		s.logger.Warn("Failed to read list cache", zap.String("key", key), zap.Error(err))
	}

	list, err := fetch()
	if err != nil {
		s.logger.Warn("Failed to fetch list", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if err := store.SetJSONTTL(ctx, s.kv, key, list, s.ttl()); err != nil {
		s.logger.Warn("Failed to write list cache", zap.String("key", key), zap.Error(err))
	}
	return list
}

// GetDeptUserIDs 部门直属用户ID
func (s *OrgService) GetDeptUserIDs(ctx context.Context, deptID int) []int {
	return cachedList(ctx, s, keyDeptUserIDs+strconv.Itoa(deptID), false, func() ([]int, error) {
		return s.dir.FetchDeptUserIDs(ctx, deptID)
	})
}

// GetDeptAllUserIDs 部门及全部下级部门的用户ID
func (s *OrgService) GetDeptAllUserIDs(ctx context.Context, deptID int) []int {
	return cachedList(ctx, s, keyDeptAllUserIDs+strconv.Itoa(deptID), true, func() ([]int, error) {
		return s.dir.FetchDeptAllUserIDs(ctx, deptID)
	})
}

// GetSubordinateIDs 用户的下属ID
func (s *OrgService) GetSubordinateIDs(ctx context.Context, userID int) []int {
	return cachedList(ctx, s, keySubordinateIDs+strconv.Itoa(userID), false, func() ([]int, error) {
		return s.dir.FetchSubordinateIDs(ctx, userID)
	})
}

// GetDeptUserList 部门用户明细
func (s *OrgService) GetDeptUserList(ctx context.Context, deptID int) []models.UserDetail {
	return cachedList(ctx, s, keyDeptUsers+strconv.Itoa(deptID), false, func() ([]models.UserDetail, error) {
		return s.dir.FetchDeptUsers(ctx, deptID)
	})
}

// GetChildDepartments 子部门，recursive 为 true 时包含全部下级
func (s *OrgService) GetChildDepartments(ctx context.Context, deptID int, recursive bool) []models.DepartmentRef {
	depts, err := s.dir.FetchChildDepartments(ctx, deptID, recursive)
	if err != nil {
		s.logger.Warn("Failed to fetch child departments", zap.Int("dept_id", deptID), zap.Error(err))
		return []models.DepartmentRef{}
	}
	return depts
}

// SearchUsers 按关键字搜索用户（使用调用方的用户 token）
func (s *OrgService) SearchUsers(ctx context.Context, keyword, userToken string) []models.User {
	users, err := s.dir.SearchUsers(ctx, keyword, userToken)
	if err != nil {
		s.logger.Warn("Failed to search users", zap.String("keyword", keyword), zap.Error(err))
		return []models.User{}
	}
	return users
}

// CheckUserInDepts 用户是否属于任一部门
func (s *OrgService) CheckUserInDepts(ctx context.Context, userID int, deptIDs []int) bool {
	ok, err := s.dir.CheckUserInDepts(ctx, userID, deptIDs)
	if err != nil {
		s.logger.Warn("Failed to check user departments", zap.Int("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

// CheckPermissionHasUser 权限下是否包含用户
func (s *OrgService) CheckPermissionHasUser(ctx context.Context, permID, userID int) bool {
	ok, err := s.dir.CheckPermissionHasUser(ctx, permID, userID)
	if err != nil {
		s.logger.Warn("Failed to check permission", zap.Int("perm_id", permID), zap.Error(err))
		return false
	}
	return ok
}

// Verify 校验用户 token 对路径的访问权限
func (s *OrgService) Verify(ctx context.Context, userToken, path string) bool {
	ok, err := s.dir.VerifyAccess(ctx, userToken, path)
	if err != nil {
		s.logger.Warn("Failed to verify access", zap.String("path", path), zap.Error(err))
		return false
	}
	return ok
}
