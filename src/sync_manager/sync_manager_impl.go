package sync_manager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"go.uber.org/zap"
)

// Config 同步链参数
type Config struct {
	DeviceID string
	// StepTimeout 单个请求等待应答的时间，0 表示不设超时
	StepTimeout time.Duration
	// MaxRetries 超时后重发同一请求的次数，耗尽后跳过该数据域
	MaxRetries int
	// Days 按天请求的数据域回溯天数（含今天）
	Days int
	// PersistTimeout 同步结束时写库的超时
	PersistTimeout time.Duration
	// SettleDelay 重发过的步骤完成后，先等待这段时间吸收原请求迟到的应答再推进
	// 0 表示立即推进
	SettleDelay time.Duration
}

// DefaultConfig 默认回溯 8 天，每步 10 秒超时，重试 2 次
func DefaultConfig(deviceID string) Config {
	return Config{
		DeviceID:       deviceID,
		StepTimeout:    10 * time.Second,
		MaxRetries:     2,
		Days:           8,
		PersistTimeout: 30 * time.Second,
		SettleDelay:    time.Second,
	}
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

func WithPersister(p inter.Persister) Option {
	return func(o *Orchestrator) { o.persist = p }
}

// WithScheduler 超时定时器来源；未设置时不启用超时
func WithScheduler(s inter.Scheduler) Option {
	return func(o *Orchestrator) { o.schedule = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProgress 每发出一个请求调用一次
func WithProgress(fn func(p Phase, dayOffset int)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// Orchestrator 历史同步状态机
// 一次只有一个请求在途；只在当前阶段对应数据域的完成信号到来时推进
// 非并发安全，调用方（会话事件循环）保证串行调用
type Orchestrator struct {
	cfg      Config
	sender   inter.Sender
	cursor   *inter.Cursor
	buffer   inter.SampleBuffer
	bigData  inter.BigDataState
	persist  inter.Persister
	schedule inter.Scheduler
	progress func(Phase, int)
	log      *zap.Logger
	now      func() time.Time

	phase     Phase
	step      uint64
	retries   int
	settling  bool
	stopTimer func()
	result    inter.SyncResult
	onDone    func(inter.SyncResult)
}

func New(cfg Config, sender inter.Sender, cursor *inter.Cursor, buffer inter.SampleBuffer, bigData inter.BigDataState, opts ...Option) *Orchestrator {
	if cfg.Days <= 0 {
		cfg.Days = 8
	}
	o := &Orchestrator{
		cfg:     cfg,
		sender:  sender,
		cursor:  cursor,
		buffer:  buffer,
		bigData: bigData,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase 当前阶段
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Active 是否有同步链在进行
func (o *Orchestrator) Active() bool {
	return o.phase.Active()
}

// Start 从今天的活动数据开始一条新的同步链
// onDone 在链结束（完成或取消）时恰好被调用一次
func (o *Orchestrator) Start(onDone func(inter.SyncResult)) error {
	if o.Active() {
		return inter.ErrSyncInProgress
	}
	now := o.now()
	o.onDone = onDone
	o.result = inter.SyncResult{StartedAt: now}
	o.retries = 0
	o.settling = false

	if o.persist != nil {
		ctx, cancel := o.persistCtx()
		id, err := o.persist.BeginRun(ctx, o.cfg.DeviceID, now)
		cancel()
		if err != nil {
			o.log.Warn("failed to record sync run start", zap.Error(err))
		}
		o.result.RunID = id
	}

	o.log.Info("sync started", zap.String("device", o.cfg.DeviceID), zap.String("run_id", o.result.RunID))
	o.phase = PhaseActivity
	o.cursor.Reset(now)
	o.request()
	return nil
}

// Handle 接收解码器的完成信号
func (o *Orchestrator) Handle(c inter.Completion) {
	if !o.Active() || c.Domain != o.phase.Domain() {
		o.log.Debug("completion ignored",
			zap.Stringer("phase", o.phase),
			zap.Stringer("domain", c.Domain),
		)
		return
	}
	if o.settling {
		// 原请求与重发请求的应答都会带来完成信号，第二个不能再推进游标
		o.log.Debug("duplicate completion after retry absorbed",
			zap.Stringer("phase", o.phase),
			zap.Int("day_offset", o.cursor.DayOffset),
		)
		return
	}
	o.disarm()
	retried := o.retries > 0
	o.retries = 0

	if retried && o.schedule != nil && o.cfg.SettleDelay > 0 {
		o.settling = true
		step := o.step
		o.stopTimer = o.schedule(o.cfg.SettleDelay, func() { o.settled(step) })
		return
	}
	o.next()
}

// settled 重发步骤的等待期结束
func (o *Orchestrator) settled(step uint64) {
	if !o.Active() || !o.settling || step != o.step {
		return
	}
	o.stopTimer = nil
	o.settling = false
	o.next()
}

// next 当前步骤已完成：按天推进或进入下一阶段
func (o *Orchestrator) next() {
	if o.phase.DayScoped() && o.cursor.DayOffset+1 < o.cfg.Days {
		o.cursor.SetDay(o.cursor.DayOffset+1, o.now())
		o.request()
		return
	}
	o.advance()
}

// Timeout 由定时器回调；step 不是当前请求时忽略
func (o *Orchestrator) Timeout(step uint64) {
	if !o.Active() || o.settling || step != o.step {
		return
	}
	o.stopTimer = nil
	if o.phase.BigData() {
		o.bigData.Reset()
	}

	if o.retries < o.cfg.MaxRetries {
		o.retries++
		o.log.Warn("sync step timed out, retrying",
			zap.Stringer("phase", o.phase),
			zap.Int("day_offset", o.cursor.DayOffset),
			zap.Int("attempt", o.retries),
		)
		o.request()
		return
	}

	d := o.phase.Domain()
	o.log.Warn("sync step failed, skipping domain",
		zap.Stringer("domain", d),
		zap.Int("day_offset", o.cursor.DayOffset),
	)
	if !slices.Contains(o.result.Failed, d) {
		o.result.Failed = append(o.result.Failed, d)
	}
	o.retries = 0
	o.advance()
}

// Cancel 中止同步链，回调以 ErrSyncCancelled 被调用一次
func (o *Orchestrator) Cancel() {
	if !o.Active() {
		return
	}
	o.log.Info("sync cancelled", zap.Stringer("phase", o.phase))
	o.disarm()
	o.settling = false
	o.bigData.Reset()
	o.phase = PhaseIdle
	o.finish(inter.ErrSyncCancelled)
}

// advance 是阶段之间唯一的转移
func (o *Orchestrator) advance() {
	o.phase++
	if o.phase >= PhaseDone {
		o.phase = PhaseDone
		o.finish(nil)
		return
	}
	o.cursor.Reset(o.now())
	o.request()
}

func (o *Orchestrator) request() {
	packet := o.packetFor(o.phase)
	o.step++
	step := o.step

	if o.phase.BigData() && o.bigData.Pending() {
		// 不在已有重组进行时发出第二个大数据请求，等超时后重置再发
		o.log.Warn("big data reassembly pending, deferring request", zap.Stringer("phase", o.phase))
	} else {
		if o.progress != nil {
			o.progress(o.phase, o.cursor.DayOffset)
		}
		if err := o.sender.Send(packet); err != nil {
			o.log.Warn("failed to send sync request",
				zap.Stringer("phase", o.phase),
				zap.Error(err),
			)
		}
	}

	if o.schedule != nil && o.cfg.StepTimeout > 0 {
		o.stopTimer = o.schedule(o.cfg.StepTimeout, func() { o.Timeout(step) })
	}
}

func (o *Orchestrator) packetFor(p Phase) []byte {
	switch p {
	case PhaseActivity:
		return protocol.RequestActivity(o.cursor.DayOffset)
	case PhaseHeartRate:
		return protocol.RequestHeartRate(o.cursor.Day)
	case PhaseStress:
		return protocol.RequestStress()
	case PhaseSpO2:
		return protocol.RequestBigData(inter.DataSpO2)
	case PhaseSleep:
		return protocol.RequestBigData(inter.DataSleep)
	case PhaseHRV:
		return protocol.RequestHRV(o.cursor.DayOffset)
	case PhaseTemperature:
		return protocol.RequestBigData(inter.DataTemperature)
	}
	panic(fmt.Sprintf("sync_manager: no request for phase %s", p))
}

func (o *Orchestrator) disarm() {
	if o.stopTimer != nil {
		o.stopTimer()
		o.stopTimer = nil
	}
}

func (o *Orchestrator) persistCtx() (context.Context, context.CancelFunc) {
	if o.cfg.PersistTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
}

// finish 持久化（仅正常完成时）并调用一次完成回调
func (o *Orchestrator) finish(err error) {
	o.disarm()
	o.result.FinishedAt = o.now()
	o.result.Err = err

	status := inter.RunCancelled
	if err == nil {
		status = inter.RunDone
		snap := o.buffer.Snapshot()
		o.result.Samples = snap.Len()
		o.result.Counts = make(map[inter.Domain]int, len(phaseDomains))
		for _, d := range phaseDomains {
			o.result.Counts[d] = snap.Count(d)
		}
		if o.persist != nil {
			ctx, cancel := o.persistCtx()
			perr := o.persist.Persist(ctx, o.cfg.DeviceID, snap)
			cancel()
			if perr != nil {
				o.result.Err = fmt.Errorf("persist samples: %w", perr)
			}
		}
		if o.result.Err == nil {
			o.buffer.Reset()
		}
	}

	if o.persist != nil && o.result.RunID != "" {
		finished := o.result.FinishedAt
		ctx, cancel := o.persistCtx()
		ferr := o.persist.FinishRun(ctx, inter.SyncRun{
			ID:         o.result.RunID,
			DeviceID:   o.cfg.DeviceID,
			StartedAt:  o.result.StartedAt,
			FinishedAt: &finished,
			Status:     status,
			Samples:    o.result.Samples,
			Failed:     o.result.Failed,
		})
		cancel()
		if ferr != nil {
			o.log.Warn("failed to record sync run end", zap.Error(ferr))
		}
	}

	o.cursor.Reset(o.now())
	o.log.Info("sync finished",
		zap.String("run_id", o.result.RunID),
		zap.Int("samples", o.result.Samples),
		zap.Int("failed_domains", len(o.result.Failed)),
		zap.Error(o.result.Err),
	)

	cb := o.onDone
	o.onDone = nil
	if cb != nil {
		cb(o.result)
	}
}
