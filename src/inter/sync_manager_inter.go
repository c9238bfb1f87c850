package inter

import (
	"context"
	"time"
)

// SyncResult 一次同步链的结果，通过完成回调交给调用方
type SyncResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Samples 持久化的样本总数
	Samples int
	// Counts 各数据域的样本数
	Counts map[Domain]int
	// Failed 超时重试耗尽后被跳过的数据域
	Failed []Domain
	// Err 为 nil、ErrSyncCancelled 或持久化错误
	Err error
}

// Sender 出站数据包的去处
type Sender interface {
	Send(packet []byte) error
}

// SampleBuffer 同步过程中累积样本的内存库
type SampleBuffer interface {
	Snapshot() Snapshot
	Reset()
}

// BigDataState 大数据重组器对编排器可见的部分
type BigDataState interface {
	Pending() bool
	Reset()
}

// Persister 同步结束时保存样本与运行记录，DataStore 的子集
type Persister interface {
	Persist(ctx context.Context, deviceID string, snap Snapshot) error
	BeginRun(ctx context.Context, deviceID string, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, run SyncRun) error
}

// Scheduler 在 d 之后调用 fire，返回取消函数
// 实现方负责把 fire 投递回调用方所在的事件循环
type Scheduler func(d time.Duration, fire func()) (stop func())
