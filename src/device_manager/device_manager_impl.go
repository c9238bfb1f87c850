package device_manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nhirsama/Goster-Ring/src/datastore"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/nhirsama/Goster-Ring/src/sync_manager"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNeverSeen 会话建立后尚未收到过任何数据包
var ErrNeverSeen = errors.New("session: 设备从未上线")

// Config 会话参数
type Config struct {
	DeviceID string
	// DeathLine 超过该时长未收到数据包视为离线
	DeathLine time.Duration
	// LiveQueueSize 实时事件队列长度，满时丢弃最早的事件
	LiveQueueSize int
	// PublishTimeout 单条实时事件的发布超时
	PublishTimeout time.Duration
	Sync           sync_manager.Config
}

// DefaultConfig 默认 60s 心跳超时
func DefaultConfig(deviceID string) Config {
	return Config{
		DeviceID:       deviceID,
		DeathLine:      60 * time.Second,
		LiveQueueSize:  64,
		PublishTimeout: 5 * time.Second,
		Sync:           sync_manager.DefaultConfig(deviceID),
	}
}

// Hooks 供调用方观察实时数据，均在会话循环中调用，不应阻塞
type Hooks struct {
	OnBattery      func(inter.BatteryInfo)
	OnHeartRate    func(inter.ManualHeartRate)
	OnLiveActivity func(inter.LiveActivity)
	OnPreferences  func(inter.Preferences)
	OnGoals        func(inter.Goals)
	OnNewData      func(inter.NotifyType)
	OnProgress     func(phase sync_manager.Phase, dayOffset int)
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithPersister(p inter.Persister) Option {
	return func(s *Session) { s.persist = p }
}

func WithLivePublisher(p inter.LivePublisher) Option {
	return func(s *Session) { s.publisher = p }
}

func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type packetEvent struct {
	ch   inter.Channel
	data []byte
}

// Session 一枚戒指的连接会话
// 路由器、重组器、游标、编排器和内存样本库只在 loop 协程中访问
type Session struct {
	cfg       Config
	transport inter.Transport
	log       *zap.Logger
	now       func() time.Time
	persist   inter.Persister
	publisher inter.LivePublisher
	hooks     Hooks

	store  *datastore.MemoryStore
	cursor *inter.Cursor
	router *protocol.Router
	orch   *sync_manager.Orchestrator

	inbox *MessageQueue
	live  *MessageQueue
	group singleflight.Group

	lastSeen  atomic.Int64
	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	loopDone  chan struct{}
	liveDone  chan struct{}
}

func NewSession(cfg Config, t inter.Transport, opts ...Option) *Session {
	if cfg.DeathLine <= 0 {
		cfg.DeathLine = 60 * time.Second
	}
	if cfg.Sync.DeviceID == "" {
		cfg.Sync.DeviceID = cfg.DeviceID
	}
	s := &Session{
		cfg:       cfg,
		transport: t,
		log:       zap.NewNop(),
		now:       time.Now,
		store:     datastore.NewMemoryStore(),
		cursor:    &inter.Cursor{},
		inbox:     NewMessageQueue(0),
		live:      NewMessageQueue(cfg.LiveQueueSize),
		closed:    make(chan struct{}),
		loopDone:  make(chan struct{}),
		liveDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("device", cfg.DeviceID))
	s.cursor.Reset(s.now())

	s.router = protocol.NewRouter(s.store, s.cursor, protocol.Callbacks{
		OnComplete:     func(c inter.Completion) { s.orch.Handle(c) },
		OnBattery:      s.onBattery,
		OnHeartRate:    s.onHeartRate,
		OnLiveActivity: s.onLiveActivity,
		OnPreferences:  s.hooks.OnPreferences,
		OnGoals:        s.hooks.OnGoals,
		OnNewData:      s.hooks.OnNewData,
	}, s.log, protocol.WithClock(s.now))

	orchOpts := []sync_manager.Option{
		sync_manager.WithScheduler(s.schedule),
		sync_manager.WithLogger(s.log),
		sync_manager.WithClock(s.now),
	}
	if s.persist != nil {
		orchOpts = append(orchOpts, sync_manager.WithPersister(s.persist))
	}
	if s.hooks.OnProgress != nil {
		orchOpts = append(orchOpts, sync_manager.WithProgress(s.hooks.OnProgress))
	}
	s.orch = sync_manager.New(cfg.Sync, s, s.cursor, s.store, s.router.Reassembler(), orchOpts...)
	return s
}

// Start 注册链路回调并启动会话循环
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.transport.OnPacket(s.enqueue)
		go s.loop()
		go s.publishLoop()
	})
}

// Close 取消进行中的同步（回调仍被调用一次），停止循环并关闭链路
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Start()
		s.post(func() {
			s.orch.Cancel()
			close(s.closed)
		})
		<-s.loopDone
		<-s.liveDone
		err = s.transport.Close()
		if s.publisher != nil {
			if perr := s.publisher.Close(); perr != nil && err == nil {
				err = perr
			}
		}
	})
	return err
}

// enqueue 链路回调：只记录时间并入队，真正的处理在 loop 中
func (s *Session) enqueue(ch inter.Channel, packet []byte) {
	s.lastSeen.Store(s.now().UnixNano())
	data := make([]byte, len(packet))
	copy(data, packet)
	_ = s.inbox.Push(packetEvent{ch: ch, data: data})
}

func (s *Session) post(fn func()) {
	_ = s.inbox.Push(fn)
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		for {
			msg, ok := s.inbox.Pop()
			if !ok {
				break
			}
			s.dispatch(msg)
			select {
			case <-s.closed:
				return
			default:
			}
		}
		select {
		case <-s.closed:
			return
		case <-s.inbox.Notify():
		}
	}
}

func (s *Session) dispatch(msg any) {
	switch m := msg.(type) {
	case packetEvent:
		s.router.HandleChannel(m.ch, m.data)
	case func():
		m()
	default:
		s.log.Error("unexpected inbox message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// schedule 定时器到期后把 fire 投递回会话循环
func (s *Session) schedule(d time.Duration, fire func()) func() {
	t := time.AfterFunc(d, func() { s.post(fire) })
	return func() { t.Stop() }
}

// Send 发送一个数据包；指令通道的数据包补齐为 16 字节帧
func (s *Session) Send(packet []byte) error {
	select {
	case <-s.closed:
		return inter.ErrSessionClosed
	default:
	}
	if inter.ChannelOf(packet) == inter.ChannelCommand {
		framed, err := protocol.Frame(packet)
		if err != nil {
			return fmt.Errorf("frame command 0x%02X: %w", packet[0], err)
		}
		packet = framed
	}
	if err := s.transport.Send(packet); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Sync 执行一次完整的历史同步
// 并发调用会合并到同一条同步链上，并得到相同的结果
// ctx 只控制本调用方的等待，不会取消同步链本身
func (s *Session) Sync(ctx context.Context) (inter.SyncResult, error) {
	ch := s.group.DoChan("sync", func() (any, error) {
		started := make(chan error, 1)
		done := make(chan inter.SyncResult, 1)
		s.post(func() {
			started <- s.orch.Start(func(r inter.SyncResult) { done <- r })
		})

		select {
		case err := <-started:
			if err != nil {
				return inter.SyncResult{}, err
			}
		case <-s.closed:
			return inter.SyncResult{}, inter.ErrSessionClosed
		}

		select {
		case r := <-done:
			return r, r.Err
		case <-s.closed:
			// Close 先取消同步链再关闭，结果通常已经在 done 中
			select {
			case r := <-done:
				return r, r.Err
			default:
				return inter.SyncResult{}, inter.ErrSessionClosed
			}
		}
	})

	select {
	case res := <-ch:
		r, _ := res.Val.(inter.SyncResult)
		return r, res.Err
	case <-ctx.Done():
		return inter.SyncResult{}, ctx.Err()
	}
}

// CancelSync 取消进行中的同步链
func (s *Session) CancelSync() {
	s.post(s.orch.Cancel)
}

// Snapshot 返回会话内存样本库的拷贝
func (s *Session) Snapshot(ctx context.Context) (inter.Snapshot, error) {
	out := make(chan inter.Snapshot, 1)
	s.post(func() { out <- s.store.Snapshot() })
	select {
	case snap := <-out:
		return snap, nil
	case <-s.closed:
		return inter.Snapshot{}, inter.ErrSessionClosed
	case <-ctx.Done():
		return inter.Snapshot{}, ctx.Err()
	}
}

// QueryStatus 根据最后一次收包时间判断在线状态
func (s *Session) QueryStatus() (inter.DeviceStatus, error) {
	last := s.lastSeen.Load()
	if last == 0 {
		return inter.StatusOffline, ErrNeverSeen
	}
	if s.now().Sub(time.Unix(0, last)) < s.cfg.DeathLine {
		return inter.StatusOnline, nil
	}
	return inter.StatusOffline, nil
}

// LastSeen 最后一次收到数据包的时间
func (s *Session) LastSeen() time.Time {
	last := s.lastSeen.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}

// --- 实时数据 ---

func (s *Session) onBattery(b inter.BatteryInfo) {
	if s.hooks.OnBattery != nil {
		s.hooks.OnBattery(b)
	}
	s.queueLive(inter.LiveEvent{Kind: inter.KindBattery, Time: s.now(), Battery: &b})
}

func (s *Session) onHeartRate(m inter.ManualHeartRate) {
	if s.hooks.OnHeartRate != nil {
		s.hooks.OnHeartRate(m)
	}
	if m.Status != inter.MeasureOK {
		return
	}
	s.queueLive(inter.LiveEvent{Kind: inter.KindHeartRate, Time: m.Time, HeartRate: &m})
}

func (s *Session) onLiveActivity(a inter.LiveActivity) {
	if s.hooks.OnLiveActivity != nil {
		s.hooks.OnLiveActivity(a)
	}
	s.queueLive(inter.LiveEvent{Kind: inter.KindActivity, Time: a.Time, Activity: &a})
}

func (s *Session) queueLive(ev inter.LiveEvent) {
	if s.publisher == nil {
		return
	}
	_ = s.live.Push(ev)
}

// publishLoop 在独立协程中发布实时事件
func (s *Session) publishLoop() {
	defer close(s.liveDone)
	for {
		for {
			msg, ok := s.live.Pop()
			if !ok {
				break
			}
			s.publish(msg.(inter.LiveEvent))
		}
		select {
		case <-s.closed:
			return
		case <-s.live.Notify():
		}
	}
}

func (s *Session) publish(ev inter.LiveEvent) {
	timeout := s.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, s.cfg.DeviceID, ev); err != nil {
		s.log.Warn("failed to publish live event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
