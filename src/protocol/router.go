package protocol

import (
	"encoding/hex"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// Sink 解码后样本的去处，*datastore.MemoryStore 实现了该接口
type Sink interface {
	AddHeartRate(s ...inter.HeartRateSample)
	AddStress(s ...inter.StressSample)
	AddSpO2(s ...inter.SpO2Sample)
	AddHRV(s ...inter.HRVSample)
	AddTemperature(s ...inter.TemperatureSample)
	AddActivity(s ...inter.ActivitySample)
	AddSleep(r ...inter.SleepRecord)
}

// Callbacks 各数据域的结果回调，均可为 nil
type Callbacks struct {
	// OnComplete 历史数据域的完成信号，驱动同步编排器
	OnComplete func(inter.Completion)
	// OnSamples 某数据域本次解码并合并的样本数
	OnSamples      func(d inter.Domain, n int)
	OnBattery      func(inter.BatteryInfo)
	OnHeartRate    func(inter.ManualHeartRate)
	OnLiveActivity func(inter.LiveActivity)
	OnPreferences  func(inter.Preferences)
	OnGoals        func(inter.Goals)
	// OnNewData 戒指提示某类数据有更新
	OnNewData func(inter.NotifyType)
}

// Option 配置 Router
type Option func(*Router)

// WithClock 替换时间源，测试中用于固定"今天"
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router 按第 0 字节分发入站数据包
type Router struct {
	sink     Sink
	cursor   *inter.Cursor
	cb       Callbacks
	log      *zap.Logger
	now      func() time.Time
	bigData  *Reassembler
	handlers map[inter.CmdID]func([]byte)
}

// NewRouter 创建路由器；cursor 由会话持有，与编排器共享
func NewRouter(sink Sink, cursor *inter.Cursor, cb Callbacks, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		sink:   sink,
		cursor: cursor,
		cb:     cb,
		log:    logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bigData = NewReassembler(r.dispatchBigData, logger)
	r.handlers = map[inter.CmdID]func([]byte){
		inter.CmdSyncHeartRate:   r.handleHeartRate,
		inter.CmdSyncStress:      r.handleStress,
		inter.CmdSyncHRV:         r.handleHRV,
		inter.CmdSyncActivity:    r.handleActivity,
		inter.CmdManualHeartRate: r.handleManualHeartRate,
		inter.CmdNotification:    r.handleNotification,
		inter.CmdBattery:         r.handleBattery,
		inter.CmdPreferences:     r.handlePreferences,
		inter.CmdGoals:           r.handleGoals,
		inter.CmdBigDataV2:       r.bigData.Feed,
	}
	for _, cmd := range ackOnly {
		r.handlers[cmd] = r.handleAck
	}
	return r
}

// Reassembler 暴露给编排器检查是否有大数据重组在进行
func (r *Router) Reassembler() *Reassembler {
	return r.bigData
}

// Handle 处理一个来源通道未知的数据包
// 大数据重组进行中时，除完整的指令帧外都视为后续分片
func (r *Router) Handle(packet []byte) {
	if len(packet) == 0 {
		return
	}
	if r.bigData.Pending() && !r.commandFrame(packet) {
		r.bigData.Feed(packet)
		return
	}
	r.route(packet)
}

// HandleChannel 处理一个已知来源通道的数据包
// 不区分通道的链路按约定报告 ChannelCommand，因此指令通道按 Handle 的规则处理
func (r *Router) HandleChannel(ch inter.Channel, packet []byte) {
	if len(packet) == 0 {
		return
	}
	if ch == inter.ChannelBigData {
		r.bigData.Feed(packet)
		return
	}
	r.Handle(packet)
}

// commandFrame 校验和正确的 16 字节帧，且首字节是已注册的指令（大数据除外）
func (r *Router) commandFrame(packet []byte) bool {
	if !ValidFrame(packet) || inter.CmdID(packet[0]) == inter.CmdBigDataV2 {
		return false
	}
	_, ok := r.handlers[inter.CmdID(packet[0])]
	return ok
}

func (r *Router) route(packet []byte) {
	cmd := inter.CmdID(packet[0])
	h, ok := r.handlers[cmd]
	if !ok {
		r.log.Debug("unknown command, dropped",
			zap.Uint8("cmd", packet[0]),
			zap.String("hex", hex.EncodeToString(packet)),
		)
		return
	}
	h(packet)
}

func (r *Router) dispatchBigData(dt inter.DataType, payload []byte) {
	switch dt {
	case inter.DataSpO2:
		r.decodeSpO2(payload)
	case inter.DataSleep:
		r.decodeSleep(payload)
	case inter.DataTemperature:
		r.decodeTemperature(payload)
	default:
		r.log.Debug("unknown big data type, dropped", zap.Uint8("type", uint8(dt)), zap.Int("len", len(payload)))
	}
}

func (r *Router) complete(d inter.Domain, o inter.Outcome) {
	if r.cb.OnComplete != nil {
		r.cb.OnComplete(inter.Completion{Domain: d, Outcome: o})
	}
}

func (r *Router) samples(d inter.Domain, n int) {
	if n > 0 && r.cb.OnSamples != nil {
		r.cb.OnSamples(d, n)
	}
}

func (r *Router) tooShort(domain string, packet []byte, min int) bool {
	if len(packet) >= min {
		return false
	}
	r.log.Debug("packet too short, dropped",
		zap.String("domain", domain),
		zap.Int("len", len(packet)),
		zap.Int("min", min),
	)
	return true
}
