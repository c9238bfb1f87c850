package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// Option 配置 Client 与 Server
type Option func(*options)

type options struct {
	log   *zap.Logger
	idle  time.Duration
	hello time.Duration
	now   func() time.Time
}

func defaultOptions() options {
	return options{log: zap.NewNop(), idle: 60 * time.Second, hello: 2 * time.Second, now: time.Now}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithIdleTimeout 超过该时长没有收到任何帧即断开，<= 0 表示不限
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idle = d }
}

// WithHelloTimeout Server 接入连接后等待 hello 帧的时间，<= 0 表示不等待
func WithHelloTimeout(d time.Duration) Option {
	return func(o *options) { o.hello = d }
}

// WithClock 帧时间戳的时间源
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Client 通过中继 (手机/ESP32 网关) 的 TCP 连接与戒指通信，实现 inter.Transport
// 每个戒指数据包封装为一帧中继帧；上行帧交给 OnPacket 注册的回调
type Client struct {
	conn  net.Conn
	codec inter.RelayCodec
	opts  options
	log   *zap.Logger

	// deviceID 来自 hello 帧；first 是 Hello 读到的非 hello 首帧
	deviceID string
	first    *inter.Frame

	wmu       sync.Mutex
	readOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

var _ inter.Transport = (*Client)(nil)

func NewClient(conn net.Conn, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		conn:  conn,
		codec: NewCodec(),
		opts:  o,
		log:   o.log.With(zap.String("remote", conn.RemoteAddr().String())),
		done:  make(chan struct{}),
	}
}

// Dial 连接到中继
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// OnPacket 注册回调并开始读取；只有第一次调用生效
func (c *Client) OnPacket(fn func(ch inter.Channel, packet []byte)) {
	c.readOnce.Do(func() {
		go c.readLoop(fn)
	})
}

// Hello 读取中继接入后的首帧，必须在 OnPacket 之前调用
// 首帧是 hello 时记录戒指标识，是普通帧时留给读循环首先投递
// timeout 内没有收到任何字节视为中继不发 hello
func (c *Client) Hello(timeout time.Duration) error {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	cr := &countingReader{r: c.conn}
	f, err := c.codec.Unpack(cr)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		var ne net.Error
		if cr.n == 0 && errors.As(err, &ne) && ne.Timeout() {
			c.log.Debug("relay sent no hello")
			return nil
		}
		if errors.Is(err, ErrPayloadCRC) {
			c.log.Warn("relay frame dropped", zap.Error(err))
			return nil
		}
		return fmt.Errorf("relay hello: %w", err)
	}
	if f.Hello {
		c.deviceID = string(f.Payload)
		c.log.Info("relay hello", zap.String("device", c.deviceID))
		return nil
	}
	c.first = f
	return nil
}

// DeviceID 中继在 hello 帧中报告的戒指标识，没有 hello 时为空
func (c *Client) DeviceID() string {
	return c.deviceID
}

func (c *Client) readLoop(fn func(ch inter.Channel, packet []byte)) {
	defer close(c.done)
	if f := c.first; f != nil {
		c.first = nil
		if f.Uplink {
			fn(f.Channel, f.Payload)
		}
	}
	for {
		if c.opts.idle > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.idle))
		}
		f, err := c.codec.Unpack(c.conn)
		if err != nil {
			if closedErr(err) {
				return
			}
			if errors.Is(err, ErrPayloadCRC) {
				// 长度字段可信，流仍然对齐
				c.log.Warn("relay frame dropped", zap.Error(err))
				continue
			}
			c.log.Warn("relay stream broken", zap.Error(err))
			c.err = err
			_ = c.conn.Close()
			return
		}
		if f.Hello {
			c.log.Debug("ignoring repeated hello", zap.String("device", string(f.Payload)))
			continue
		}
		if !f.Uplink {
			c.log.Debug("ignoring downlink echo", zap.Int("len", len(f.Payload)))
			continue
		}
		fn(f.Channel, f.Payload)
	}
}

func (c *Client) Send(packet []byte) error {
	select {
	case <-c.done:
		return inter.ErrTransportClosed
	default:
	}
	buf, err := c.codec.Pack(inter.Frame{
		Channel:     inter.ChannelOf(packet),
		TimestampMs: c.opts.now().UnixMilli(),
		Payload:     packet,
	})
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(buf); err != nil {
		if closedErr(err) {
			return inter.ErrTransportClosed
		}
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

// Done 读循环退出后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err 读循环因协议错误退出时的原因，正常断开为 nil
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		// 未启动读循环时 done 需要在这里关闭
		c.readOnce.Do(func() { close(c.done) })
		<-c.done
	})
	if closedErr(err) {
		return nil
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// closedErr 对端或本端正常关闭连接
func closedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
