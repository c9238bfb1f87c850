package live

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher 把最新的实时数据写入设备影子哈希 ring:<device>:live
// 每类事件只覆盖自己的字段，整个键在 ttl 后过期
type RedisPublisher struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

var _ inter.LivePublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisPublisher{rdb: rdb, ttl: ttl, log: logger}
}

// DialRedis 创建客户端并 PING 一次
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// LiveKey 设备影子键
func LiveKey(deviceID string) string {
	return "ring:" + deviceID + ":live"
}

func (p *RedisPublisher) Publish(ctx context.Context, deviceID string, ev inter.LiveEvent) error {
	fields := liveFields(ev)
	if len(fields) == 0 {
		return nil
	}
	key := LiveKey(deviceID)
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Kind, err)
	}
	p.log.Debug("live event stored", zap.String("key", key), zap.String("kind", string(ev.Kind)))
	return nil
}

func liveFields(ev inter.LiveEvent) map[string]any {
	ts := strconv.FormatInt(ev.Time.UnixMilli(), 10)
	switch ev.Kind {
	case inter.KindBattery:
		if ev.Battery == nil {
			return nil
		}
		return map[string]any{
			"battery_level":    ev.Battery.Level,
			"battery_charging": strconv.FormatBool(ev.Battery.Charging),
			"battery_ts":       ts,
		}
	case inter.KindHeartRate:
		if ev.HeartRate == nil {
			return nil
		}
		return map[string]any{
			"heart_rate":    ev.HeartRate.BPM,
			"heart_rate_ts": ts,
		}
	case inter.KindActivity:
		if ev.Activity == nil {
			return nil
		}
		return map[string]any{
			"steps":       ev.Activity.Steps,
			"kcal":        strconv.FormatFloat(ev.Activity.Calories, 'f', 2, 64),
			"distance_m":  ev.Activity.Distance,
			"activity_ts": ts,
		}
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
