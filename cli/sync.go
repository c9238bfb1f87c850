package cli

import (
	"context"
	"net"
	"time"

	"github.com/nhirsama/Goster-Ring/src/device_manager"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/nhirsama/Goster-Ring/src/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type syncReport struct {
	Device     string             `json:"device"`
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Samples    int                `json:"samples"`
	Counts     map[string]int     `json:"counts"`
	Failed     []string           `json:"failed,omitempty"`
	Battery    *inter.BatteryInfo `json:"battery,omitempty"`
}

func newSyncReport(device string, r inter.SyncResult) syncReport {
	rep := syncReport{
		Device:     device,
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Samples:    r.Samples,
		Counts:     make(map[string]int, len(r.Counts)),
	}
	for d, n := range r.Counts {
		rep.Counts[d.String()] = n
	}
	for _, d := range r.Failed {
		rep.Failed = append(rep.Failed, d.String())
	}
	return rep
}

// greet 连接后先校时并写入主机名，再读一次电量
func greet(s *device_manager.Session, phoneName string, now time.Time) error {
	packets := [][]byte{protocol.SetDateTime(now), protocol.ReadBattery()}
	if phoneName != "" {
		packets = append(packets, protocol.SetPhoneName(phoneName))
	}
	for _, p := range packets {
		if err := s.Send(p); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) syncCmd() *cobra.Command {
	var noStore bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full history sync and persist the samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.openTransport(ctx)
			if err != nil {
				return err
			}

			var persister inter.Persister
			if !noStore {
				store, err := a.openStore()
				if err != nil {
					t.Close()
					return err
				}
				defer store.Close()
				persister = store
			}
			pub, err := a.openLive(ctx)
			if err != nil {
				t.Close()
				return err
			}

			battery := make(chan inter.BatteryInfo, 1)
			hooks := a.progressHook()
			hooks.OnBattery = func(b inter.BatteryInfo) {
				select {
				case battery <- b:
				default:
				}
			}
			s := a.newSession(a.cfg.SessionConfig(), t, persister, pub, hooks)
			s.Start()
			defer s.Close()

			if err := greet(s, a.cfg.Device.PhoneName, time.Now()); err != nil {
				return err
			}
			res, err := s.Sync(ctx)
			if err != nil {
				return err
			}

			rep := newSyncReport(a.cfg.Device.ID, res)
			select {
			case b := <-battery:
				rep.Battery = &b
			default:
			}
			return printJSON(cmd, rep)
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not persist samples")
	return cmd
}

func (a *app) listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Accept relay connections and sync every ring that connects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			pub, err := a.openLive(ctx)
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
			}

			srv, err := relay.Listen(a.cfg.Relay.Listen,
				relay.WithLogger(a.log),
				relay.WithIdleTimeout(a.cfg.Relay.IdleTimeout),
				relay.WithHelloTimeout(a.cfg.Relay.HelloTimeout),
			)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, func(ctx context.Context, c *relay.Client) {
				a.serveRing(ctx, c, store, pub)
			})
		},
	}
}

// serveRing 一条中继连接的生命周期：校时、同步，然后保持会话直到断开
func (a *app) serveRing(ctx context.Context, c *relay.Client, store inter.Persister, pub inter.LivePublisher) {
	id := ringID(a.cfg.Device.ID, c)
	log := a.log.With(zap.String("remote", c.RemoteAddr().String()), zap.String("device", id))
	t, err := a.capture(c)
	if err != nil {
		log.Error("failed to open capture", zap.Error(err))
		return
	}
	// 发布器由 listen 统一关闭，会话只借用
	var shared inter.LivePublisher
	if pub != nil {
		shared = nopCloser{pub}
	}
	s := a.newSession(a.cfg.SessionConfigFor(id), t, store, shared, a.progressHook())
	s.Start()
	defer s.Close()

	if err := greet(s, a.cfg.Device.PhoneName, time.Now()); err != nil {
		log.Warn("failed to greet ring", zap.Error(err))
		return
	}
	res, err := s.Sync(ctx)
	if err != nil {
		log.Warn("sync failed", zap.Error(err))
	} else {
		log.Info("sync done", zap.String("run_id", res.RunID), zap.Int("samples", res.Samples))
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
	}
}

// ringID 优先使用握手帧里的戒指标识，否则以远端主机区分同一监听端口上的多枚戒指
func ringID(base string, c *relay.Client) string {
	if id := c.DeviceID(); id != "" {
		return id
	}
	addr := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return base + "@" + addr
}

type nopCloser struct {
	inter.LivePublisher
}

func (nopCloser) Close() error { return nil }
