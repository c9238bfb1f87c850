package transport

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"go.uber.org/zap"
)

type reply struct {
	ch   inter.Channel
	data []byte
}

// SimOption 配置 Simulator
type SimOption func(*Simulator)

// WithSimClock 模拟戒指的"现在"
func WithSimClock(now func() time.Time) SimOption {
	return func(s *Simulator) { s.now = now }
}

// WithHistoryDays 有历史数据的天数（含今天），更早的请求回应哨兵
func WithHistoryDays(n int) SimOption {
	return func(s *Simulator) { s.days = n }
}

// WithMTU 大数据应答的分片大小
func WithMTU(n int) SimOption {
	return func(s *Simulator) { s.mtu = n }
}

// WithDrop 丢弃前 n 个指定指令的请求，用于模拟丢包
func WithDrop(cmd inter.CmdID, n int) SimOption {
	return func(s *Simulator) { s.drop[cmd] = n }
}

func WithSimLogger(l *zap.Logger) SimOption {
	return func(s *Simulator) { s.log = l }
}

// Simulator 内存中的模拟戒指，实现 inter.Transport
// 对每个请求给出确定的应答，应答在独立协程中按顺序投递
type Simulator struct {
	mu       sync.Mutex
	handler  func(inter.Channel, []byte)
	requests [][]byte
	drop     map[inter.CmdID]int
	closed   bool

	now  func() time.Time
	days int
	mtu  int
	log  *zap.Logger

	replies chan reply
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewSimulator(opts ...SimOption) *Simulator {
	s := &Simulator{
		drop:    make(map[inter.CmdID]int),
		now:     time.Now,
		days:    3,
		mtu:     20,
		log:     zap.NewNop(),
		replies: make(chan reply, 4096),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.deliver()
	return s
}

func (s *Simulator) OnPacket(fn func(ch inter.Channel, packet []byte)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// Requests 返回收到的全部请求，保持收到时的原样
func (s *Simulator) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *Simulator) Send(packet []byte) error {
	if len(packet) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return inter.ErrTransportClosed
	}
	cp := append([]byte(nil), packet...)
	s.requests = append(s.requests, cp)
	cmd := inter.CmdID(cp[0])
	if n := s.drop[cmd]; n > 0 {
		s.drop[cmd] = n - 1
		s.mu.Unlock()
		s.log.Debug("simulator dropped request", zap.Uint8("cmd", uint8(cmd)))
		return nil
	}
	s.mu.Unlock()

	for _, r := range s.respond(cp) {
		select {
		case s.replies <- r:
		case <-s.done:
			return inter.ErrTransportClosed
		}
	}
	return nil
}

func (s *Simulator) deliver() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case r := <-s.replies:
			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if h != nil {
				h(r.ch, r.data)
			}
		}
	}
}

func cmdReply(b ...byte) reply {
	framed, err := protocol.Frame(b)
	if err != nil {
		framed = b
	}
	return reply{ch: inter.ChannelCommand, data: framed}
}

func (s *Simulator) respond(p []byte) []reply {
	switch inter.CmdID(p[0]) {
	case inter.CmdSyncActivity:
		daysAgo, _ := protocol.RequestDay(p, s.now())
		return s.activity(daysAgo)
	case inter.CmdSyncHeartRate:
		return s.heartRate(p)
	case inter.CmdSyncStress:
		return s.stress()
	case inter.CmdSyncHRV:
		daysAgo, _ := protocol.RequestDay(p, s.now())
		return s.hrv(daysAgo)
	case inter.CmdBigDataV2:
		return s.bigData(inter.DataType(at(p, 1)))
	case inter.CmdBattery:
		return []reply{cmdReply(byte(inter.CmdBattery), 87, 0)}
	case inter.CmdManualHeartRate:
		if at(p, 2) == 0x01 {
			return []reply{cmdReply(byte(inter.CmdManualHeartRate), 0x01, 0x00, 72)}
		}
	case inter.CmdPreferences:
		if at(p, 1) == inter.PrefRead {
			return []reply{cmdReply(byte(inter.CmdPreferences), inter.PrefRead, 0, 0, 1, 30, 175, 70, 120, 80, 160)}
		}
	case inter.CmdGoals:
		if at(p, 1) == inter.PrefRead {
			return []reply{cmdReply(byte(inter.CmdGoals), inter.PrefRead,
				0x10, 0x27, 0x00, 0x80, 0x84, 0x1E, 0x40, 0x1F, 0x00, 0x3C, 0x00, 0xE0, 0x01)}
		}
	}
	return []reply{cmdReply(p[0])}
}

func at(p []byte, i int) byte {
	if i < len(p) {
		return p[i]
	}
	return 0
}

func (s *Simulator) hasDay(daysAgo int) bool {
	return daysAgo >= 0 && daysAgo < s.days
}

// activity 每天 08:00 起 4 个刻钟槽位
func (s *Simulator) activity(daysAgo int) []reply {
	cmd := byte(inter.CmdSyncActivity)
	if !s.hasDay(daysAgo) {
		return []reply{cmdReply(cmd, 0xFF)}
	}
	day := inter.DayStart(s.now(), daysAgo)
	const total = 4
	out := make([]reply, 0, total)
	for i := 0; i < total; i++ {
		steps := 100 * (i + 1)
		b := []byte{cmd, byte(day.Month()), byte(day.Day()), byte(32 + i), byte(i), total, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint16(b[6:], uint16(steps*4))
		binary.LittleEndian.PutUint16(b[8:], uint16(steps))
		binary.LittleEndian.PutUint16(b[10:], uint16(steps*7/10))
		out = append(out, cmdReply(b...))
	}
	return out
}

func (s *Simulator) heartRate(p []byte) []reply {
	cmd := byte(inter.CmdSyncHeartRate)
	daysAgo, ok := protocol.RequestDay(p, s.now())
	if !ok || !s.hasDay(daysAgo) {
		return []reply{cmdReply(cmd, 0xFF)}
	}

	first := []byte{cmd, 0x01, p[1], p[2], p[3], p[4]}
	for i := 0; i < 9; i++ {
		first = append(first, byte(60+i))
	}
	second := []byte{cmd, 0x02}
	for i := 0; i < 13; i++ {
		second = append(second, byte(70+i))
	}
	return []reply{cmdReply(cmd, 0x00, 3, 5), cmdReply(first...), cmdReply(second...)}
}

func (s *Simulator) stress() []reply {
	cmd := byte(inter.CmdSyncStress)
	first := []byte{cmd, 0x01, 0x1E}
	for i := 0; i < 12; i++ {
		first = append(first, byte(20+i))
	}
	return []reply{cmdReply(cmd, 0x00, 2), cmdReply(first...)}
}

func (s *Simulator) hrv(daysAgo int) []reply {
	cmd := byte(inter.CmdSyncHRV)
	if !s.hasDay(daysAgo) {
		return []reply{cmdReply(cmd, 0xFF)}
	}
	first := []byte{cmd, 0x01, 0x1E}
	for i := 0; i < 12; i++ {
		first = append(first, byte(40+i))
	}
	second := []byte{cmd, 0x02}
	for i := 0; i < 13; i++ {
		second = append(second, 50)
	}
	return []reply{cmdReply(cmd, 0x00, 3), cmdReply(first...), cmdReply(second...)}
}

func (s *Simulator) bigData(dt inter.DataType) []reply {
	var payload []byte
	switch dt {
	case inter.DataSpO2:
		for d := s.days - 1; d >= 0; d-- {
			block := make([]byte, 1+48)
			block[0] = byte(d)
			for h := 0; h < 6; h++ {
				block[1+2*h], block[2+2*h] = 95, 99
			}
			payload = append(payload, block...)
		}
	case inter.DataSleep:
		payload = append(payload, byte(s.days))
		for d := s.days - 1; d >= 0; d-- {
			payload = append(payload,
				byte(d), 14,
				0x64, 0x05, // 23:00
				0xA4, 0x01, // 07:00
				2, 120, 3, 60, 4, 90, 5, 30, 2, 180,
			)
		}
	case inter.DataTemperature:
		for d := s.days - 1; d >= 0; d-- {
			block := make([]byte, 2+48)
			block[0], block[1] = byte(d), 30
			for i := 0; i < 16; i++ {
				block[2+i] = byte(150 + i%10)
			}
			payload = append(payload, block...)
		}
	default:
		return nil
	}

	n := len(payload)
	frame := append([]byte{byte(inter.CmdBigDataV2), byte(dt), byte(n), byte(n >> 8), 0, 0}, payload...)
	var out []reply
	for len(frame) > 0 {
		size := min(s.mtu, len(frame))
		out = append(out, reply{ch: inter.ChannelBigData, data: frame[:size]})
		frame = frame[size:]
	}
	return out
}
