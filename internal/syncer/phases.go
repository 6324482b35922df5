package syncer

import (
	"context"
	"fmt"

	"orgcache/internal/models"
	"orgcache/internal/orgcache"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// syncDepartments 拉取部门与用户明细，写入 UserData 与部门（含本部门领导），
// 并删除目录服务中已不存在的部门与用户数据。返回部门数与有效用户明细数
func (s *Scheduler) syncDepartments(ctx context.Context, log *zap.Logger) (int, int, error) {
	refs, err := s.dir.FetchAllDepartments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch departments: %w", err)
	}
	deptByID := make(map[int]models.DepartmentRef, len(refs))
	for _, ref := range refs {
		deptByID[ref.ID] = ref
	}

	details, err := fetchAll(ctx, s.dir.FetchUserDetailsPage)
	if err != nil {
		return len(refs), 0, fmt.Errorf("failed to fetch user details: %w", err)
	}

	tiers := s.cache.Engine().Tiers()
	leaders := make(map[int]map[int]models.Leader, len(refs))
	seen := mapset.NewThreadUnsafeSet[int]()
	valid, skipped := 0, 0
	for _, d := range details {
		ref, ok := deptByID[d.DepartmentID]
		if d.DepartmentID == 0 || !d.IsAlive || !ok {
			skipped++
			continue
		}
		post := d.PostTitle()
		if post == "" {
			skipped++
			continue
		}

		code := models.ParseManagerCodeIn(tiers, post)
		data := models.UserData{
			AccountID:    d.AccountID,
			Name:         d.Name,
			DeptID:       ref.ID,
			DeptName:     ref.Name,
			DeptDesc:     ref.Desc,
			Position:     d.Post.Position,
			StandardPost: d.Post.StandardPost,
			ManagerCode:  code,
			IsLeader:     d.IsLeader,
		}
		if err := s.cache.UpsertUserData(ctx, data); err != nil {
			return len(refs), valid, err
		}
		seen.Add(d.AccountID)
		valid++

		if !models.IsValidManagerCode(code) {
			continue
		}
		if leaders[ref.ID] == nil {
			leaders[ref.ID] = make(map[int]models.Leader)
		}
		// 同一部门同一层级有多人时，后出现者覆盖
		leaders[ref.ID][code] = models.Leader{
			UserID:     d.AccountID,
			UserName:   d.Name,
			UniqueCode: d.UniqueCode,
		}
	}

	for _, ref := range refs {
		if err := s.cache.UpsertDepartment(ctx, ref.ToDepartment(leaders[ref.ID])); err != nil {
			return len(refs), valid, err
		}
	}

	prunedDepts, prunedData, err := s.prune(ctx, log, refs, seen)
	if err != nil {
		return len(refs), valid, err
	}

	log.Info("Departments synced",
		zap.Int("departments", len(refs)),
		zap.Int("user_details", len(details)),
		zap.Int("user_data", valid),
		zap.Int("skipped", skipped),
		zap.Int("pruned_departments", prunedDepts),
		zap.Int("pruned_user_data", prunedData),
	)
	return len(refs), valid, nil
}

// prune 删除本轮未出现的部门与用户数据
// 目录服务返回空列表时不清理
func (s *Scheduler) prune(ctx context.Context, log *zap.Logger, refs []models.DepartmentRef, seen mapset.Set[int]) (int, int, error) {
	if len(refs) == 0 {
		log.Warn("Directory returned no departments, skip pruning")
		return 0, 0, nil
	}
	keep := mapset.NewThreadUnsafeSetWithSize[int](len(refs))
	for _, ref := range refs {
		keep.Add(ref.ID)
	}
	depts, err := s.cache.RetainDepartments(ctx, keep)
	if err != nil {
		return 0, 0, err
	}
	if seen.Cardinality() == 0 {
		log.Warn("Directory returned no valid user details, skip pruning user data")
		return depts, 0, nil
	}
	data, err := s.cache.RetainUserData(ctx, seen)
	if err != nil {
		return depts, 0, err
	}
	return depts, data, nil
}

func (s *Scheduler) syncUsers(ctx context.Context) (int, error) {
	users, err := fetchAll(ctx, s.dir.FetchUsersPage)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	for _, u := range users {
		if err := s.cache.UpsertUser(ctx, u); err != nil {
			return 0, err
		}
	}
	return len(users), nil
}

// syncCti 按 CTI 系统写入绑定关系 hash，field 为外部系统用户编码
func (s *Scheduler) syncCti(ctx context.Context, log *zap.Logger) (int, error) {
	total := 0
	for _, code := range s.opts.CtiCodes {
		relations, err := s.dir.FetchCtiRelations(ctx, code)
		if err != nil {
			return total, fmt.Errorf("failed to fetch cti relations %d: %w", code, err)
		}
		key := orgcache.CtiRelateKey(code)
		current := mapset.NewThreadUnsafeSetWithSize[string](len(relations))
		for _, r := range relations {
			raw, err := orgcache.EncodeCtiRelate(r)
			if err != nil {
				return total, err
			}
			if err := s.kv.HSet(ctx, key, r.Code, raw); err != nil {
				return total, fmt.Errorf("failed to save cti relation %s: %w", key, err)
			}
			current.Add(r.Code)
		}
		if err := s.pruneCti(ctx, key, current); err != nil {
			return total, err
		}
		total += len(relations)
	}
	log.Debug("CTI relations synced", zap.Int("systems", len(s.opts.CtiCodes)), zap.Int("relations", total))
	return total, nil
}

// pruneCti 删除已解绑的外部系统用户编码，本轮为空时保留原有绑定
func (s *Scheduler) pruneCti(ctx context.Context, key string, current mapset.Set[string]) error {
	if current.Cardinality() == 0 {
		return nil
	}
	stored, err := s.kv.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read cti relations %s: %w", key, err)
	}
	var stale []string
	for f := range stored {
		if !current.Contains(f) {
			stale = append(stale, f)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.kv.HDel(ctx, key, stale...); err != nil {
		return fmt.Errorf("failed to prune cti relations %s: %w", key, err)
	}
	return nil
}

// fetchAll 偏移量分页拉取直到空页
func fetchAll[T any](ctx context.Context, fetch func(context.Context, int) ([]T, error)) ([]T, error) {
	var all []T
	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		page, err := fetch(ctx, index)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		index += len(page)
	}
}
