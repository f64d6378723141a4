package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTT publishes every report as JSON to one topic.
type MQTT struct {
	client    mqtt.Client
	topic     string
	qos       byte
	log       *zap.Logger
	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTT builds an auto-reconnecting client; call Connect before Emit.
func NewMQTT(o MQTTOptions, log *zap.Logger) *MQTT {
	log = logger.OrDefault(log, "mqtt")
	broker := o.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", zap.String("Broker", broker), zap.String("ClientID", o.ClientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", zap.String("Broker", broker), zap.Error(err))
	}
	return NewMQTTWithClient(mqtt.NewClient(opts), o.Topic, o.QoS, log)
}

func NewMQTTWithClient(client mqtt.Client, topic string, qos byte, log *zap.Logger) *MQTT {
	return &MQTT{client: client, topic: topic, qos: qos, log: logger.OrDefault(log, "mqtt")}
}

func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (m *MQTT) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	if !m.client.IsConnected() {
		m.errors.Add(1)
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(NewPayload(iface.Report{Result: result, FPS: fps}))
	if err != nil {
		m.errors.Add(1)
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	token := m.client.Publish(m.topic, m.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		m.errors.Add(1)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		m.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}
	m.published.Add(1)
	m.log.Debug("report published", zap.String("Topic", m.topic), zap.Int("Size", len(payload)))
	return nil
}

func (m *MQTT) Published() uint64 { return m.published.Load() }
func (m *MQTT) Errors() uint64    { return m.errors.Load() }

func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
