package report

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrMQTTTimeout is returned when the broker does not acknowledge in time.
var ErrMQTTTimeout = errors.New("mqtt operation timed out")

// MQTTConfig configures the broker connection used by MQTTSink.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Publisher is the subset of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// DialMQTT connects to the broker once. There is no reconnect or retry.
func DialMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// MQTTSink publishes each report line as one QoS 1 message on topic.
type MQTTSink struct {
	mu      sync.Mutex
	client  Publisher
	topic   string
	timeout time.Duration
}

// NewMQTTSink creates a sink publishing to topic through client.
func NewMQTTSink(client Publisher, topic string, timeout time.Duration) *MQTTSink {
	return &MQTTSink{
		client:  client,
		topic:   topic,
		timeout: timeout,
	}
}

// Topic returns the topic lines are published on.
func (s *MQTTSink) Topic() string {
	return s.topic
}

// WriteLine implements Sink.
func (s *MQTTSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.client.Publish(s.topic, 1, false, line)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish %s: %w", s.topic, ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", s.topic, err)
	}
	return nil
}

// Close implements Sink. The connection is shared between sinks and is
// closed by whoever dialed it.
func (s *MQTTSink) Close() error {
	return nil
}
