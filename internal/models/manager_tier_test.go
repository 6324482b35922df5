package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseManagerCode(t *testing.T) {
	tests := []struct {
		post string
		want int
	}{
		{"总裁", 0},
		{"副总裁", 0},
		{"区域总监", 1},
		{"分公司负责人", 2},
		{"负责人", 2},
		{"部门经理", 3},
		{"客服主管", 4},
		{"专员", InvalidManagerCode},
		{"", InvalidManagerCode},
	}
	for _, tt := range tests {
		t.Run(tt.post, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseManagerCode(tt.post))
		})
	}
}

func TestParseManagerCodeIn_FirstMatchWins(t *testing.T) {
	tiers := []ManagerTier{
		{Code: 7, Name: "Head"},
		{Code: 8, Name: "Group Head"},
	}
	// "Group Head" 同时包含两者，按声明顺序取第一个
	assert.Equal(t, 7, ParseManagerCodeIn(tiers, "Group Head"))
	assert.Equal(t, 8, ParseManagerCodeIn(tiers[1:], "Group Head"))
}

func TestFindManagerTier(t *testing.T) {
	tier, ok := FindManagerTier(3)
	assert.True(t, ok)
	assert.Equal(t, "经理", tier.Name)
	assert.True(t, tier.Show)

	_, ok = FindManagerTier(42)
	assert.False(t, ok)
}

func TestEnabledCtiCodes_SkipsDisabled(t *testing.T) {
	codes := EnabledCtiCodes()
	assert.NotContains(t, codes, 0)
	assert.NotContains(t, codes, 6)
	assert.Contains(t, codes, 1)
	assert.Contains(t, codes, 25)
}
