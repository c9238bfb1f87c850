package relay

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// Recorder 包装任意链路，把收发的每个数据包以中继帧格式追加到 w
// 写入失败只记录日志，不影响链路本身
type Recorder struct {
	inner inter.Transport
	codec inter.RelayCodec
	w     io.Writer
	opts  options

	mu     sync.Mutex
	frames int
}

var _ inter.Transport = (*Recorder)(nil)

func NewRecorder(inner inter.Transport, w io.Writer, opts ...Option) *Recorder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Recorder{inner: inner, codec: NewCodec(), w: w, opts: o}
}

func (r *Recorder) record(uplink bool, ch inter.Channel, packet []byte) {
	buf, err := r.codec.Pack(inter.Frame{
		Uplink:      uplink,
		Channel:     ch,
		TimestampMs: r.opts.now().UnixMilli(),
		Payload:     packet,
	})
	if err != nil {
		r.opts.log.Warn("capture pack failed", zap.Error(err))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(buf); err != nil {
		r.opts.log.Warn("capture write failed", zap.Error(err))
		return
	}
	r.frames++
}

func (r *Recorder) Send(packet []byte) error {
	r.record(false, inter.ChannelOf(packet), packet)
	return r.inner.Send(packet)
}

func (r *Recorder) OnPacket(fn func(ch inter.Channel, packet []byte)) {
	r.inner.OnPacket(func(ch inter.Channel, packet []byte) {
		r.record(true, ch, packet)
		fn(ch, packet)
	})
}

// Frames 已写入的帧数
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *Recorder) Close() error {
	err := r.inner.Close()
	if c, ok := r.w.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// ReadCapture 依次读取抓包文件中的帧，直到文件结束或 fn 返回错误
func ReadCapture(r io.Reader, fn func(f inter.Frame) error) (int, error) {
	codec := NewCodec()
	n := 0
	for {
		f, err := codec.Unpack(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("capture frame %d: %w", n, err)
		}
		n++
		if err := fn(*f); err != nil {
			return n, err
		}
	}
}

// FrameTime 帧的中继时间戳
func FrameTime(f inter.Frame) time.Time {
	return time.UnixMilli(f.TimestampMs)
}
