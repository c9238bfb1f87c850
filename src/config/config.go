package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhirsama/Goster-Ring/src/datastore"
	"github.com/nhirsama/Goster-Ring/src/device_manager"
	"github.com/nhirsama/Goster-Ring/src/live"
	"github.com/nhirsama/Goster-Ring/src/sync_manager"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 RING_STORAGE_DSN
const EnvPrefix = "RING"

type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Session SessionConfig `mapstructure:"session"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Export  ExportConfig  `mapstructure:"export"`
}

type DeviceConfig struct {
	ID string `mapstructure:"id"`
	// PhoneName 连接后写给戒指的主机名
	PhoneName string `mapstructure:"phone_name"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Service string `mapstructure:"service"`
}

type StorageConfig struct {
	// Driver: sqlite 或 postgres
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SyncConfig struct {
	StepTimeout    time.Duration `mapstructure:"step_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Days           int           `mapstructure:"days"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
}

type SessionConfig struct {
	DeathLine      time.Duration `mapstructure:"death_line"`
	LiveQueueSize  int           `mapstructure:"live_queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type RelayConfig struct {
	// Listen 等待中继接入的地址
	Listen string `mapstructure:"listen"`
	// Addr 主动连接的中继地址
	Addr        string        `mapstructure:"addr"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// HelloTimeout 接入后等待握手帧的时间，超时按远端地址区分戒指
	HelloTimeout time.Duration `mapstructure:"hello_timeout"`
	// Capture 非空时把收发的数据包追加到该文件
	Capture string `mapstructure:"capture"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.id", "ring-1")
	v.SetDefault("device.phone_name", "Goster")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.service", "goster-ring")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./ring.db")

	v.SetDefault("sync.step_timeout", 10*time.Second)
	v.SetDefault("sync.max_retries", 2)
	v.SetDefault("sync.days", 8)
	v.SetDefault("sync.persist_timeout", 30*time.Second)
	v.SetDefault("sync.settle_delay", time.Second)

	v.SetDefault("session.death_line", 60*time.Second)
	v.SetDefault("session.live_queue_size", 64)
	v.SetDefault("session.publish_timeout", 5*time.Second)

	v.SetDefault("relay.listen", ":8081")
	v.SetDefault("relay.addr", "")
	v.SetDefault("relay.idle_timeout", 60*time.Second)
	v.SetDefault("relay.hello_timeout", 2*time.Second)
	v.SetDefault("relay.capture", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "goster-ring")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "ring")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("export.dir", ".")
}

// Load 读取配置：默认值 < 配置文件 < RING_ 环境变量
// path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Device.ID == "" {
		errs = append(errs, errors.New("device.id 不能为空"))
	}
	if _, _, err := datastore.ParseDialect(c.Storage.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.Days < 1 {
		errs = append(errs, fmt.Errorf("sync.days 至少为 1, 实际 %d", c.Sync.Days))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries 不能为负数"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos 只能是 0/1/2, 实际 %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

// SessionConfig 会话与同步链参数
func (c *Config) SessionConfig() device_manager.Config {
	return device_manager.Config{
		DeviceID:       c.Device.ID,
		DeathLine:      c.Session.DeathLine,
		LiveQueueSize:  c.Session.LiveQueueSize,
		PublishTimeout: c.Session.PublishTimeout,
		Sync: sync_manager.Config{
			DeviceID:       c.Device.ID,
			StepTimeout:    c.Sync.StepTimeout,
			MaxRetries:     c.Sync.MaxRetries,
			Days:           c.Sync.Days,
			PersistTimeout: c.Sync.PersistTimeout,
			SettleDelay:    c.Sync.SettleDelay,
		},
	}
}

// SessionConfigFor 与 SessionConfig 相同，但使用给定的设备标识（为空时保留配置值）
func (c *Config) SessionConfigFor(deviceID string) device_manager.Config {
	sc := c.SessionConfig()
	if deviceID != "" {
		sc.DeviceID = deviceID
		sc.Sync.DeviceID = deviceID
	}
	return sc
}

func (c *Config) MQTTOptions() live.MQTTOptions {
	return live.MQTTOptions{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         byte(c.MQTT.QoS),
		Retained:    c.MQTT.Retained,
	}
}
