package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes each event as JSON to a broker topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

type mqttPayload struct {
	Timestamp string   `json:"timestamp"`
	Interval  *float64 `json:"seconds_since_last_motion"`
	Unix      int64    `json:"unix_ms"`
}

// ConnectMQTT connects to broker (host:port or a full URL) and returns a sink
// publishing to topic. The client reconnects on its own after the first connect.
func ConnectMQTT(ctx context.Context, broker, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("MQTT connected", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost, reconnecting", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return newMQTTSink(client, topic), nil
}

func newMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic}
}

func brokerURL(broker string) string {
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://", "mqtts://"} {
		if len(broker) >= len(scheme) && broker[:len(scheme)] == scheme {
			return broker
		}
	}
	return "tcp://" + broker
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Write(ctx context.Context, ev Event) error {
	p := mqttPayload{Timestamp: ev.Wall, Unix: ev.At.UnixMilli()}
	if ev.HasInterval {
		v := ev.Interval
		p.Interval = &v
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	timeout := time.NewTimer(2 * time.Second)
	defer timeout.Stop()
	select {
	case <-token.Done():
	case <-timeout.C:
		return errors.New("publish timeout")
	case <-ctx.Done():
		return fmt.Errorf("publish abandoned: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
