package models

// User 目录服务中的用户
type User struct {
	AccountID   int    `json:"accountId"`
	Name        string `json:"name"`
	Alias       string `json:"alias,omitempty"`
	Identity    string `json:"identity"`   // 身份证号，唯一
	UniqueCode  string `json:"uniqueCode"` // 外部唯一标识（EHR）
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Sex         int    `json:"sex,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Permissions []int  `json:"permissions,omitempty"`
	PlatformID  int    `json:"platformId,omitempty"`
	TenantID    int    `json:"tenantId,omitempty"`
}

// Post 用户岗位信息
type Post struct {
	StandardPost  string `json:"standardPost"` // 标准岗位编码
	Post          string `json:"post"`         // 岗位名称
	PostDuty      string `json:"postDuty,omitempty"`
	PostSystem    string `json:"postSystem,omitempty"`
	PostGroup     string `json:"postGroup,omitempty"`
	Position      string `json:"position"`
	PositionClass string `json:"positionClass,omitempty"`
	PositionGrade string `json:"positionGrade,omitempty"`
}

// UserDetail 带部门与岗位的用户明细（部门同步使用）
type UserDetail struct {
	User
	DepartmentID int   `json:"departmentId"`
	Post         *Post `json:"post"`
	IsAlive      bool  `json:"isAlive"`
	IsLeader     bool  `json:"isLeader"`
}

// PostTitle 返回岗位名称，无岗位时为空
func (d *UserDetail) PostTitle() string {
	if d.Post == nil {
		return ""
	}
	return d.Post.Post
}

// UserData 用户数据缓存（每个用户一条，部门同步时整体替换）
type UserData struct {
	AccountID    int    `json:"accountId"`
	Name         string `json:"name"`
	DeptID       int    `json:"deptId"`
	DeptName     string `json:"deptName"`
	DeptDesc     string `json:"deptDesc"`
	Position     string `json:"position"`
	StandardPost string `json:"standardPost"`
	ManagerCode  int    `json:"managerCode"`
	IsLeader     bool   `json:"isLeader"`
}

// DefaultUserData 未命中时返回的默认数据
func DefaultUserData() UserData {
	return UserData{}
}
