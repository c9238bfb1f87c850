package protocol

import (
	"encoding/hex"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

type reassemblyState int

const (
	stateIdle reassemblyState = iota
	// stateHeader 已收到 0xBC，类型与长度字段还没收齐
	stateHeader
	stateBuffering
)

// bigDataPrefix [0xBC, type, lenLow, lenHigh]
const bigDataPrefix = 4

// Reassembler 大数据分片重组
// 帧格式 [0xBC, type, lenLow, lenHigh, crcLow, crcHigh, ...payload]，完整长度为 len+6
// 分片可以在任意位置切开，包括帧头内部
type Reassembler struct {
	state    reassemblyState
	dataType inter.DataType
	expected int
	buf      []byte

	dispatch func(dt inter.DataType, payload []byte)
	log      *zap.Logger
}

// NewReassembler dispatch 在一帧重组完成后被调用
func NewReassembler(dispatch func(inter.DataType, []byte), logger *zap.Logger) *Reassembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reassembler{dispatch: dispatch, log: logger}
}

// Pending 是否有重组正在进行
func (a *Reassembler) Pending() bool {
	return a.state != stateIdle
}

// Progress 返回 (已收字节, 期望字节)；空闲时为 (0, 0)，帧头未收齐时期望为 0
func (a *Reassembler) Progress() (received, expected int) {
	if a.state != stateBuffering {
		return len(a.buf), 0
	}
	return len(a.buf), a.expected
}

// Reset 丢弃正在进行的重组
func (a *Reassembler) Reset() {
	a.state = stateIdle
	a.dataType = 0
	a.expected = 0
	a.buf = nil
}

// Feed 送入一个分片
func (a *Reassembler) Feed(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	if a.state == stateBuffering && a.isForeignHeader(fragment) {
		a.log.Warn("big data header for another type while buffering, restarting reassembly",
			zap.Uint8("buffering", uint8(a.dataType)),
			zap.Uint8("incoming", fragment[1]),
			zap.Int("received", len(a.buf)),
			zap.Int("expected", a.expected),
		)
		a.Reset()
	}

	switch a.state {
	case stateIdle:
		if fragment[0] != byte(inter.CmdBigDataV2) {
			a.log.Debug("dropping big data fragment without header", zap.String("hex", hex.EncodeToString(fragment)))
			return
		}
		a.buf = append([]byte(nil), fragment...)
		a.state = stateHeader
		a.readHeader()
	case stateHeader:
		a.buf = append(a.buf, fragment...)
		a.readHeader()
	default:
		a.buf = append(a.buf, fragment...)
		a.tryComplete()
	}
}

// readHeader 帧头收齐后进入 stateBuffering
func (a *Reassembler) readHeader() {
	if len(a.buf) < bigDataPrefix {
		return
	}
	a.dataType = inter.DataType(a.buf[1])
	a.expected = le16(a.buf[2:4]) + inter.BigDataHeaderSize
	a.state = stateBuffering
	a.tryComplete()
}

func (a *Reassembler) tryComplete() {
	if len(a.buf) < a.expected {
		return
	}
	if len(a.buf) > a.expected {
		a.log.Debug("big data overrun, truncating",
			zap.Int("received", len(a.buf)),
			zap.Int("expected", a.expected),
		)
	}
	dt, payload := a.dataType, a.buf[:a.expected]
	a.Reset()
	a.dispatch(dt, payload)
}

// isForeignHeader 分片看起来像另一种已知类型的大数据头
func (a *Reassembler) isForeignHeader(fragment []byte) bool {
	if len(fragment) < bigDataPrefix || fragment[0] != byte(inter.CmdBigDataV2) {
		return false
	}
	dt := inter.DataType(fragment[1])
	if dt == a.dataType {
		return false
	}
	switch dt {
	case inter.DataSpO2, inter.DataSleep, inter.DataTemperature:
		return true
	}
	return false
}
