// Package leader 计算部门各管理层级的最近祖先领导。
//
// 对每个部门沿 ParentID 向上收集祖先链（含自身），由近及远为每个层级
// 取第一个声明了该层级领导的部门；已分配的层级不会被更远的祖先覆盖。
// 父链成环时以已访问集合终止，祖先链长度不超过部门总数。
package leader

import (
	"strings"

	"orgcache/internal/models"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	pairSeparator = ":"
	descSeparator = "/"
)

// Resolution 单个部门的解析结果
type Resolution struct {
	// Managers key: ManagerTier.Code，包含不展示的层级
	Managers map[int]models.Manager
	// Desc 展示层级的 "层级名:领导名" 以 "/" 连接
	Desc string
}

// Engine 领导解析引擎（无状态，可并发使用）
type Engine struct {
	tiers []models.ManagerTier
}

// NewEngine 创建解析引擎，tiers 为空时使用 models.ManagerTiers
func NewEngine(tiers []models.ManagerTier) *Engine {
	if len(tiers) == 0 {
		tiers = models.ManagerTiers
	}
	return &Engine{tiers: tiers}
}

// Tiers 返回引擎使用的层级表（声明顺序）
func (e *Engine) Tiers() []models.ManagerTier {
	return e.tiers
}

// Ancestors 返回从 id 自身到根的祖先链
// 父部门不存在或已访问过时停止
func (e *Engine) Ancestors(depts map[int]models.Department, id int) []models.Department {
	dept, ok := depts[id]
	if !ok {
		return nil
	}
	visited := mapset.NewThreadUnsafeSet(id)
	chain := []models.Department{dept}
	for {
		parentID := dept.ParentID
		if visited.Contains(parentID) {
			break
		}
		parent, ok := depts[parentID]
		if !ok {
			break
		}
		visited.Add(parentID)
		chain = append(chain, parent)
		dept = parent
	}
	return chain
}

// Resolve 解析单个部门，部门不存在时返回空结果
func (e *Engine) Resolve(depts map[int]models.Department, id int) Resolution {
	managers := make(map[int]models.Manager)
	for _, ancestor := range e.Ancestors(depts, id) {
		if len(managers) == len(e.tiers) {
			break
		}
		for _, tier := range e.tiers {
			if _, assigned := managers[tier.Code]; assigned {
				continue
			}
			l, ok := ancestor.Leaders[tier.Code]
			if !ok {
				continue
			}
			managers[tier.Code] = models.Manager{
				ManagerCode: tier.Code,
				UserID:      l.UserID,
				UniqueCode:  l.UniqueCode,
				UserName:    l.UserName,
				Name:        ancestor.Name,
			}
		}
	}
	return Resolution{Managers: managers, Desc: e.Describe(managers)}
}

// ResolveAll 解析全部部门
func (e *Engine) ResolveAll(depts map[int]models.Department) map[int]Resolution {
	out := make(map[int]Resolution, len(depts))
	for id := range depts {
		out[id] = e.Resolve(depts, id)
	}
	return out
}

// Describe 按层级声明顺序生成领导描述，跳过不展示或无领导的层级
func (e *Engine) Describe(managers map[int]models.Manager) string {
	var parts []string
	for _, tier := range e.tiers {
		if !tier.Show {
			continue
		}
		m, ok := managers[tier.Code]
		if !ok {
			continue
		}
		parts = append(parts, tier.Name+pairSeparator+m.UserName)
	}
	return strings.Join(parts, descSeparator)
}
