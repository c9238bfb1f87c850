package inter

import (
	"context"
	"errors"
	"time"
)

// 会话与同步相关的标准错误
var (
	ErrSyncCancelled   = errors.New("sync: 同步链已取消")
	ErrSyncInProgress  = errors.New("sync: 已有同步链在进行")
	ErrSessionClosed   = errors.New("session: 会话已关闭")
	ErrTransportClosed = errors.New("transport: 链路已关闭")
)

// DeviceStatus 定义戒指的逻辑在线状态
type DeviceStatus int

const (
	StatusOffline DeviceStatus = iota // 离线
	StatusOnline                      // 在线
)

func (s DeviceStatus) String() string {
	if s == StatusOnline {
		return "online"
	}
	return "offline"
}

// Transport 是核心层唯一依赖的链路抽象：发送字节、接收字节
// 连接生命周期、扫描、GATT 读写都由实现方负责
type Transport interface {
	// Send 向戒指发送一个数据包
	Send(packet []byte) error

	// OnPacket 注册接收回调，每收到一个数据包调用一次，保持顺序
	// ch 为数据包到达的 GATT 特征，链路无法区分时传 ChannelCommand
	OnPacket(fn func(ch Channel, packet []byte))

	Close() error
}

// Outcome 解码器向编排器报告的完成类型
type Outcome int

const (
	// OutcomeDayComplete 当天（或当前请求）的数据已全部收到
	OutcomeDayComplete Outcome = iota
	// OutcomeNoData 哨兵字节：该请求没有数据
	OutcomeNoData
)

func (o Outcome) String() string {
	if o == OutcomeNoData {
		return "no_data"
	}
	return "complete"
}

// Completion 解码器的完成信号
type Completion struct {
	Domain  Domain
	Outcome Outcome
}

// Cursor 同步游标
// 只由编排器和上报包序号的解码器修改
type Cursor struct {
	// DayOffset 当前请求的天偏移，0 = 今天
	DayOffset int
	// Day 该偏移对应的本地零点
	Day time.Time
	// TotalPackets 多包数据域声明的总包数
	TotalPackets int
	// LastPacket 最后收到的包序号
	LastPacket int
}

// SetDay 切换到新的天偏移并清空包计数
func (c *Cursor) SetDay(offset int, now time.Time) {
	c.DayOffset = offset
	c.Day = DayStart(now, offset)
	c.TotalPackets = 0
	c.LastPacket = 0
}

// Reset 回到今天
func (c *Cursor) Reset(now time.Time) {
	c.SetDay(0, now)
}

// DayStart 返回 now 所在时区中 offset 天前的零点
func DayStart(now time.Time, offset int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}

// MessageQueue 定义会话队列的底层操作接口
// 链路回调、定时器与外部调用都通过它把事件交给会话循环
type MessageQueue interface {
	// Push 入队
	Push(message any) error

	// Pop 出队 (FIFO)
	// 返回: (消息, 是否存在)
	Pop() (any, bool)

	// Notify 有新消息入队时可读
	Notify() <-chan struct{}

	IsEmpty() bool
}

// LiveKind 实时事件类型
type LiveKind string

const (
	KindBattery   LiveKind = "battery"
	KindHeartRate LiveKind = "heart_rate"
	KindActivity  LiveKind = "activity"
)

// LiveEvent 发给实时发布器的一条事件，按 Kind 只有一个字段非空
type LiveEvent struct {
	Kind      LiveKind         `json:"kind"`
	Time      time.Time        `json:"ts"`
	Battery   *BatteryInfo     `json:"battery,omitempty"`
	HeartRate *ManualHeartRate `json:"heart_rate,omitempty"`
	Activity  *LiveActivity    `json:"activity,omitempty"`
}

// LivePublisher 实时遥测的外部出口 (Redis / MQTT)
type LivePublisher interface {
	Publish(ctx context.Context, deviceID string, ev LiveEvent) error
	Close() error
}
