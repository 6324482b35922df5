package models

// Leader 部门领导引用（轻量，不持有用户）
type Leader struct {
	UserID     int    `json:"userId"`
	UserName   string `json:"userName"`
	UniqueCode string `json:"uniqueCode"`
}

// Department 部门
// ParentID 为 0 表示根部门；父链可能成环（脏数据），解析时需保证终止
type Department struct {
	ID       int    `json:"deptId"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	ParentID int    `json:"parentId"`
	Seq      int    `json:"seq"`
	// Leaders 本部门直接声明的领导 key: ManagerTier.Code
	Leaders map[int]Leader `json:"leaderMap"`
	// LeaderDesc 领导描述，由领导解析计算，不持久化
	LeaderDesc string `json:"leaderDesc,omitempty"`
}

// Manager 领导解析结果：某层级的领导及提供该领导的部门名称
type Manager struct {
	ManagerCode int    `json:"managerCode"`
	UserID      int    `json:"userId"`
	UniqueCode  string `json:"uniqueCode"`
	UserName    string `json:"userName"`
	Name        string `json:"name"`
}

// DepartmentRef 目录服务返回的部门记录
type DepartmentRef struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parentId"`
	Name     string `json:"name"`
	Desc     string `json:"desr"`
	Seq      int    `json:"seq"`
}

// ToDepartment 转换为缓存部门，附带本部门领导
func (r DepartmentRef) ToDepartment(leaders map[int]Leader) Department {
	if leaders == nil {
		leaders = make(map[int]Leader)
	}
	return Department{
		ID:       r.ID,
		Name:     r.Name,
		Desc:     r.Desc,
		ParentID: r.ParentID,
		Seq:      r.Seq,
		Leaders:  leaders,
	}
}
