package inter

import (
	"context"
	"time"
)

// SyncRunStatus 同步记录的最终状态
type SyncRunStatus string

const (
	RunRunning   SyncRunStatus = "running"
	RunDone      SyncRunStatus = "done"
	RunCancelled SyncRunStatus = "cancelled"
)

// SyncRun 一次完整历史同步的记录
type SyncRun struct {
	ID         string        `json:"id"`
	DeviceID   string        `json:"device_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     SyncRunStatus `json:"status"`
	Samples    int           `json:"samples"`
	Failed     []Domain      `json:"failed,omitempty"`
}

// MetricPoint 持久层中的单值时序点
type MetricPoint struct {
	Domain    Domain    `json:"domain"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
	// Extra 仅活动数据使用：步数之外的卡路里与距离
	Calories float64 `json:"kcal,omitempty"`
	Distance int     `json:"distance_m,omitempty"`
	// End 与 Stage 仅睡眠记录使用
	End   *time.Time `json:"end,omitempty"`
	Stage string     `json:"stage,omitempty"`
}

// DataStore 定义样本持久化的标准接口
// 核心层只在同步链结束时调用 Persist；查询供导出与命令行使用
type DataStore interface {
	// Persist 将快照中的全部样本写入存储，时间戳相同者覆盖
	Persist(ctx context.Context, deviceID string, snap Snapshot) error

	// BeginRun 记录一次同步开始，返回运行 ID
	BeginRun(ctx context.Context, deviceID string, startedAt time.Time) (string, error)

	// FinishRun 写入同步结束状态
	FinishRun(ctx context.Context, run SyncRun) error

	// ListRuns 返回最近的同步记录（新的在前）
	ListRuns(ctx context.Context, deviceID string, limit int) ([]SyncRun, error)

	// Query 查询指定数据域在 [from, to] 区间内的数据，按时间升序
	Query(ctx context.Context, deviceID string, d Domain, from, to time.Time) ([]MetricPoint, error)

	Close() error
}
