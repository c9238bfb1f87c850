package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nhirsama/Goster-Ring/src/datastore"
	"github.com/nhirsama/Goster-Ring/src/device_manager"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/live"
	"github.com/nhirsama/Goster-Ring/src/relay"
	"github.com/nhirsama/Goster-Ring/src/sync_manager"
	"github.com/nhirsama/Goster-Ring/src/transport"
	"go.uber.org/zap"
)

func (a *app) openStore() (*datastore.SQLStore, error) {
	return datastore.OpenSQL(a.cfg.Storage.Driver, a.cfg.Storage.DSN, a.log)
}

// openTransport 模拟戒指或主动连接中继
func (a *app) openTransport(ctx context.Context) (inter.Transport, error) {
	if a.simulate {
		return a.capture(transport.NewSimulator(transport.WithSimLogger(a.log)))
	}
	if a.cfg.Relay.Addr == "" {
		return nil, errors.New("relay.addr 未配置，或使用 --simulate")
	}
	c, err := relay.Dial(ctx, a.cfg.Relay.Addr, relay.WithLogger(a.log), relay.WithIdleTimeout(a.cfg.Relay.IdleTimeout))
	if err != nil {
		return nil, err
	}
	return a.capture(c)
}

// capture 配置了抓包文件时包一层 Recorder
func (a *app) capture(t inter.Transport) (inter.Transport, error) {
	if a.cfg.Relay.Capture == "" {
		return t, nil
	}
	f, err := os.OpenFile(a.cfg.Relay.Capture, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return relay.NewRecorder(t, f, relay.WithLogger(a.log)), nil
}

// openLive 按配置组合实时发布器，都未启用时返回 nil
func (a *app) openLive(ctx context.Context) (inter.LivePublisher, error) {
	var pubs live.Multi
	if a.cfg.Redis.Enabled {
		rdb, err := live.DialRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, live.NewRedisPublisher(rdb, a.cfg.Redis.TTL, a.log))
	}
	if a.cfg.MQTT.Enabled {
		p, err := live.DialMQTT(a.cfg.MQTTOptions(), a.log)
		if err != nil {
			pubs.Close()
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	return pubs, nil
}

func (a *app) newSession(cfg device_manager.Config, t inter.Transport, store inter.Persister, pub inter.LivePublisher, hooks device_manager.Hooks) *device_manager.Session {
	opts := []device_manager.Option{
		device_manager.WithLogger(a.log),
		device_manager.WithHooks(hooks),
	}
	if store != nil {
		opts = append(opts, device_manager.WithPersister(store))
	}
	if pub != nil {
		opts = append(opts, device_manager.WithLivePublisher(pub))
	}
	return device_manager.NewSession(cfg, t, opts...)
}

func (a *app) progressHook() device_manager.Hooks {
	return device_manager.Hooks{
		OnProgress: func(p sync_manager.Phase, day int) {
			a.log.Info("sync step", zap.Stringer("phase", p), zap.Int("day_offset", day))
		},
	}
}
