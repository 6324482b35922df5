package models

// CtiRelate CTI 用户绑定关系
type CtiRelate struct {
	Code      string `json:"code"`  // 外部系统用户编码
	EhrID     string `json:"ehrId"` // 用户唯一标识
	AccountID int    `json:"accountId"`
}

// CtiSystem 外部 CTI 系统
type CtiSystem struct {
	Code     int
	Name     string
	Disabled bool
}

// CtiSystems 已接入的 CTI 系统
var CtiSystems = []CtiSystem{
	{Code: 0, Name: "unknown", Disabled: true},
	{Code: 1, Name: "duyan-1"},
	{Code: 2, Name: "duyan-2"},
	{Code: 3, Name: "duyan-3"},
	{Code: 4, Name: "duyan-4"},
	{Code: 5, Name: "duyan-5"},
	{Code: 6, Name: "duyan-6", Disabled: true},
	{Code: 7, Name: "duyan-7"},
	{Code: 8, Name: "duyan-8"},
	{Code: 9, Name: "duyan-9"},
	{Code: 10, Name: "duyan-10"},
	{Code: 11, Name: "jinhong"},
	{Code: 12, Name: "quanyu"},
	{Code: 13, Name: "lianteng"},
	{Code: 14, Name: "ronglian"},
	{Code: 15, Name: "hengxintong"},
	{Code: 16, Name: "italk"},
	{Code: 17, Name: "xuanwu"},
	{Code: 18, Name: "duyan-11"},
	{Code: 19, Name: "yunke-1"},
	{Code: 20, Name: "yunke-2"},
	{Code: 21, Name: "duyan-12"},
	{Code: 22, Name: "duyan-13"},
	{Code: 23, Name: "kefu-1"},
	{Code: 24, Name: "kefu-2"},
	{Code: 25, Name: "customize"},
}

// EnabledCtiCodes 返回启用的 CTI 系统编码
func EnabledCtiCodes() []int {
	codes := make([]int, 0, len(CtiSystems))
	for _, s := range CtiSystems {
		if s.Disabled {
			continue
		}
		codes = append(codes, s.Code)
	}
	return codes
}
