// Package directory 目录服务（SSO）客户端
package directory

import (
	"context"

	"orgcache/internal/models"
)

// Directory 目录服务查询接口
// 失败时返回空结果和错误，调用方自行决定是否忽略错误
type Directory interface {
	FetchUsersByIDs(ctx context.Context, ids []int) ([]models.User, error)
	// FetchUsersPage index 为偏移量，返回空页表示结束
	FetchUsersPage(ctx context.Context, index int) ([]models.User, error)
	FetchUserDetailsPage(ctx context.Context, index int) ([]models.UserDetail, error)
	FetchAllDepartments(ctx context.Context) ([]models.DepartmentRef, error)
	FetchChildDepartments(ctx context.Context, deptID int, recursive bool) ([]models.DepartmentRef, error)
	FetchDeptUsers(ctx context.Context, deptID int) ([]models.UserDetail, error)
	FetchDeptUserIDs(ctx context.Context, deptID int) ([]int, error)
	FetchDeptAllUserIDs(ctx context.Context, deptID int) ([]int, error)
	FetchSubordinateIDs(ctx context.Context, userID int) ([]int, error)
	FetchUserDeptDescs(ctx context.Context, userIDs []int) (map[int]string, error)
	FetchDeptDescs(ctx context.Context, deptIDs []int) (map[int]string, error)
	CheckUserInDepts(ctx context.Context, userID int, deptIDs []int) (bool, error)
	CheckPermissionHasUser(ctx context.Context, permID, userID int) (bool, error)
	VerifyAccess(ctx context.Context, userToken, path string) (bool, error)
	FetchCtiRelations(ctx context.Context, ctiCode int) ([]models.CtiRelate, error)
	SearchUsers(ctx context.Context, keyword, userToken string) ([]models.User, error)
}
