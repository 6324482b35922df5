// Package directorytest 提供内存版目录服务，供单元测试使用
package directorytest

import (
	"context"
	"sync"

	"orgcache/internal/directory"
	"orgcache/internal/models"
)

var _ directory.Directory = (*Fake)(nil)

// Fake 内存目录服务
// 分页按偏移量切片 PageSize 条；Errors 按方法名注入错误
type Fake struct {
	PageSize int

	Users         []models.User
	Details       []models.UserDetail
	Departments   []models.DepartmentRef
	Children      map[int][]models.DepartmentRef
	Cti           map[int][]models.CtiRelate
	DeptUserIDs   map[int][]int
	AllUserIDs    map[int][]int
	Subordinates  map[int][]int
	UserDeptDescs map[int]string
	DeptDescs     map[int]string
	UserDepts     map[int][]int
	PermUsers     map[int][]int
	Tokens        map[string][]string

	Errors map[string]error

	mu    sync.Mutex
	calls map[string]int
}

// New 创建空的目录服务
func New() *Fake {
	return &Fake{PageSize: 2}
}

// Calls 方法调用次数
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	return f.Errors[method]
}

func page[T any](all []T, index, size int) []T {
	if size <= 0 {
		size = len(all)
	}
	if index >= len(all) {
		return []T{}
	}
	end := index + size
	if end > len(all) {
		end = len(all)
	}
	out := make([]T, end-index)
	copy(out, all[index:end])
	return out
}

func (f *Fake) FetchUsersByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	if err := f.record("FetchUsersByIDs"); err != nil {
		return []models.User{}, err
	}
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := []models.User{}
	for _, u := range f.Users {
		if _, ok := want[u.AccountID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *Fake) FetchUsersPage(ctx context.Context, index int) ([]models.User, error) {
	if err := f.record("FetchUsersPage"); err != nil {
		return []models.User{}, err
	}
	return page(f.Users, index, f.PageSize), nil
}

func (f *Fake) FetchUserDetailsPage(ctx context.Context, index int) ([]models.UserDetail, error) {
	if err := f.record("FetchUserDetailsPage"); err != nil {
		return []models.UserDetail{}, err
	}
	return page(f.Details, index, f.PageSize), nil
}

func (f *Fake) FetchAllDepartments(ctx context.Context) ([]models.DepartmentRef, error) {
	if err := f.record("FetchAllDepartments"); err != nil {
		return []models.DepartmentRef{}, err
	}
	out := make([]models.DepartmentRef, len(f.Departments))
	copy(out, f.Departments)
	return out, nil
}

func (f *Fake) FetchChildDepartments(ctx context.Context, deptID int, recursive bool) ([]models.DepartmentRef, error) {
	if err := f.record("FetchChildDepartments"); err != nil {
		return []models.DepartmentRef{}, err
	}
	if f.Children != nil {
		if c, ok := f.Children[deptID]; ok {
			return c, nil
		}
	}
	out := []models.DepartmentRef{}
	queue := []int{deptID}
	seen := map[int]bool{deptID: true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, d := range f.Departments {
			if d.ParentID != parent || seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
			if recursive {
				queue = append(queue, d.ID)
			}
		}
	}
	return out, nil
}

func (f *Fake) FetchDeptUsers(ctx context.Context, deptID int) ([]models.UserDetail, error) {
	if err := f.record("FetchDeptUsers"); err != nil {
		return []models.UserDetail{}, err
	}
	out := []models.UserDetail{}
	for _, d := range f.Details {
		if d.DepartmentID == deptID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *Fake) FetchDeptUserIDs(ctx context.Context, deptID int) ([]int, error) {
	if err := f.record("FetchDeptUserIDs"); err != nil {
		return []int{}, err
	}
	return nonNil(f.DeptUserIDs[deptID]), nil
}

func (f *Fake) FetchDeptAllUserIDs(ctx context.Context, deptID int) ([]int, error) {
	if err := f.record("FetchDeptAllUserIDs"); err != nil {
		return []int{}, err
	}
	return nonNil(f.AllUserIDs[deptID]), nil
}

func (f *Fake) FetchSubordinateIDs(ctx context.Context, userID int) ([]int, error) {
	if err := f.record("FetchSubordinateIDs"); err != nil {
		return []int{}, err
	}
	return nonNil(f.Subordinates[userID]), nil
}

func (f *Fake) FetchUserDeptDescs(ctx context.Context, userIDs []int) (map[int]string, error) {
	if err := f.record("FetchUserDeptDescs"); err != nil {
		return map[int]string{}, err
	}
	return pick(f.UserDeptDescs, userIDs), nil
}

func (f *Fake) FetchDeptDescs(ctx context.Context, deptIDs []int) (map[int]string, error) {
	if err := f.record("FetchDeptDescs"); err != nil {
		return map[int]string{}, err
	}
	return pick(f.DeptDescs, deptIDs), nil
}

func (f *Fake) CheckUserInDepts(ctx context.Context, userID int, deptIDs []int) (bool, error) {
	if err := f.record("CheckUserInDepts"); err != nil {
		return false, err
	}
	return containsAny(f.UserDepts[userID], deptIDs), nil
}

func (f *Fake) CheckPermissionHasUser(ctx context.Context, permID, userID int) (bool, error) {
	if err := f.record("CheckPermissionHasUser"); err != nil {
		return false, err
	}
	return containsAny(f.PermUsers[permID], []int{userID}), nil
}

func (f *Fake) VerifyAccess(ctx context.Context, userToken, path string) (bool, error) {
	if err := f.record("VerifyAccess"); err != nil {
		return false, err
	}
	for _, p := range f.Tokens[userToken] {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) FetchCtiRelations(ctx context.Context, ctiCode int) ([]models.CtiRelate, error) {
	if err := f.record("FetchCtiRelations"); err != nil {
		return []models.CtiRelate{}, err
	}
	if f.Cti == nil {
		return []models.CtiRelate{}, nil
	}
	return nonNil(f.Cti[ctiCode]), nil
}

func (f *Fake) SearchUsers(ctx context.Context, keyword, userToken string) ([]models.User, error) {
	if err := f.record("SearchUsers"); err != nil {
		return []models.User{}, err
	}
	out := []models.User{}
	for _, u := range f.Users {
		if keyword != "" && (u.Name == keyword || u.Alias == keyword) {
			out = append(out, u)
		}
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func pick(src map[int]string, ids []int) map[int]string {
	out := make(map[int]string)
	for _, id := range ids {
		if v, ok := src[id]; ok {
			out[id] = v
		}
	}
	return out
}

func containsAny(have, want []int) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
