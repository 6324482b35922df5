package models

import "strings"

// ManagerTier 管理层级
type ManagerTier struct {
	Code int
	Name string
	// Show 是否出现在领导描述中
	Show bool
}

// InvalidManagerCode 岗位无法匹配任何层级
const InvalidManagerCode = -1

// ManagerTiers 组织架构领导层级，按声明顺序
var ManagerTiers = []ManagerTier{
	{Code: 0, Name: "总裁", Show: false},
	{Code: 1, Name: "总监", Show: false},
	{Code: 2, Name: "分公司负责人", Show: false},
	{Code: 3, Name: "经理", Show: true},
	{Code: 4, Name: "主管", Show: true},
}

// ParseManagerCode 根据岗位名称匹配层级
// 按声明顺序双向包含匹配，先匹配者胜出
func ParseManagerCode(post string) int {
	return ParseManagerCodeIn(ManagerTiers, post)
}

// ParseManagerCodeIn 在指定层级表中匹配
func ParseManagerCodeIn(tiers []ManagerTier, post string) int {
	if post == "" {
		return InvalidManagerCode
	}
	for _, tier := range tiers {
		if strings.Contains(tier.Name, post) || strings.Contains(post, tier.Name) {
			return tier.Code
		}
	}
	return InvalidManagerCode
}

// FindManagerTier 按编码查找层级
func FindManagerTier(code int) (ManagerTier, bool) {
	for _, tier := range ManagerTiers {
		if tier.Code == code {
			return tier, true
		}
	}
	return ManagerTier{}, false
}

// IsValidManagerCode 编码是否为有效层级
func IsValidManagerCode(code int) bool {
	return code >= 0
}
