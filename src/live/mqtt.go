package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// MQTTOptions MQTT 连接参数
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool
}

// MQTTPublisher 把实时事件以 JSON 发布到 <prefix>/<device>/<kind>
type MQTTPublisher struct {
	client   mqtt.Client
	prefix   string
	qos      byte
	retained bool
	log      *zap.Logger
}

var _ inter.LivePublisher = (*MQTTPublisher)(nil)

// DialMQTT 连接 broker，开启自动重连
func DialMQTT(o MQTTOptions, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTPublisher(client, o, logger), nil
}

func NewMQTTPublisher(client mqtt.Client, o MQTTOptions, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimSuffix(o.TopicPrefix, "/")
	if prefix == "" {
		prefix = "ring"
	}
	return &MQTTPublisher{client: client, prefix: prefix, qos: o.QoS, retained: o.Retained, log: logger}
}

// Topic 事件发布的主题
func (p *MQTTPublisher) Topic(deviceID string, kind inter.LiveKind) string {
	return p.prefix + "/" + deviceID + "/" + string(kind)
}

func (p *MQTTPublisher) Publish(ctx context.Context, deviceID string, ev inter.LiveEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := p.Topic(deviceID, ev.Kind)
	token := p.client.Publish(topic, p.qos, p.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	p.log.Debug("live event published", zap.String("topic", topic))
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
