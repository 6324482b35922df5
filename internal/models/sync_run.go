package models

import (
	"time"

	"github.com/google/uuid"
)

// 同步结果状态
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncRun 一次同步的执行记录
type SyncRun struct {
	RunID        uuid.UUID `json:"runId"`
	Instance     string    `json:"instance"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"`
	Departments  int       `json:"departments"`
	UserDetails  int       `json:"userDetails"`
	Users        int       `json:"users"`
	CtiRelations int       `json:"ctiRelations"`
	Error        string    `json:"error,omitempty"`
}

// Duration 执行耗时
func (r SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncEvent 同步完成通知，其他实例收到后从 Redis 重新加载
type SyncEvent struct {
	RunID    string `json:"runId"`
	Instance string `json:"instance"`
	// SyncTime 写入 sso:cache:request:time 的毫秒时间戳
	SyncTime int64 `json:"syncTime"`
}
