package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server 接受中继的 TCP 长连接，每条连接对应一枚戒指
type Server struct {
	ln    net.Listener
	opts  []Option
	log   *zap.Logger
	hello time.Duration
	wg    sync.WaitGroup
}

// Listen 在 addr 上监听，例如 ":8081"
func Listen(addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.log.Info("relay server listening", zap.String("addr", ln.Addr().String()))
	return &Server{ln: ln, opts: opts, log: o.log, hello: o.hello}, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve 阻塞接受连接，为每条连接在独立协程中调用 handle
// 调用 handle 前先读取 hello 帧，c.DeviceID() 即中继报告的戒指标识
// handle 返回后连接被关闭；ctx 取消时停止监听并等待所有 handle 返回
func (s *Server) Serve(ctx context.Context, handle func(ctx context.Context, c *Client)) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.log.Warn("relay accept failed", zap.Error(err))
			continue
		}
		s.log.Info("relay connected", zap.String("remote", conn.RemoteAddr().String()))

		c := NewClient(conn, s.opts...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			if s.hello > 0 {
				if err := c.Hello(s.hello); err != nil {
					s.log.Warn("relay handshake failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
					return
				}
			}
			handle(ctx, c)
		}()
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}
