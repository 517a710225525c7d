package relay

import (
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/api/websocket"
	"github.com/KevinKickass/OpenFillMonitor/internal/config"
)

// BuildSinks returns the websocket sink plus every enabled optional sink.
// An optional sink that cannot be set up is logged and left out.
func BuildSinks(cfg config.RelayConfig, hub *websocket.Hub, logger *zap.Logger) []Sink {
	sinks := []Sink{NewHubSink(hub)}

	if cfg.MQTT.Enabled {
		sink, err := NewMQTTSink(cfg.MQTT, logger)
		if err != nil {
			logger.Error("MQTT relay disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Kafka.Enabled {
		sinks = append(sinks, NewKafkaSink(cfg.Kafka))
		logger.Info("Kafka relay enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Influx.Enabled {
		sinks = append(sinks, NewInfluxSink(cfg.Influx))
		logger.Info("InfluxDB relay enabled",
			zap.String("url", cfg.Influx.URL),
			zap.String("bucket", cfg.Influx.Bucket))
	}

	return sinks
}
