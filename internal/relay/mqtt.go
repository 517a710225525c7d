package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTSink publishes events as JSON to
// <prefix>/machines/<machineId> and <prefix>/shifts/<machineId>/<shiftId>.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
}

func NewMQTTSink(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTSink, error) {
	logger = logger.Named("mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
	return &MQTTSink{client: client, prefix: cfg.TopicPrefix, qos: cfg.QoS}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Deliver(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := mqttTopic(s.prefix, ev)
	token := s.client.Publish(topic, s.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

func mqttTopic(prefix string, ev Event) string {
	if ev.Type == EventShiftChanged {
		return fmt.Sprintf("%s/shifts/%s/%s", prefix, ev.MachineID, ev.ShiftID)
	}
	return fmt.Sprintf("%s/machines/%s", prefix, ev.MachineID)
}
