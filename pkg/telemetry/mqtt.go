package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig locates the broker and the topic prefix.
type MQTTConfig struct {
	Broker   string        `json:"broker" yaml:"broker"` // host:port
	ClientID string        `json:"client_id" yaml:"client_id"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	QoS      byte          `json:"qos" yaml:"qos"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultMQTTConfig returns a local broker setup.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:   "localhost:1883",
		ClientID: "rubeus",
		Prefix:   "rubeus/telemetry",
		Timeout:  5 * time.Second,
	}
}

// Validate reports an unusable broker setup.
func (c MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt broker is empty")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d outside 0-2", c.QoS)
	}
	return nil
}

// Dial connects to the broker with auto-reconnect enabled.
func Dial(cfg MQTTConfig, logger *zap.Logger) (mqtt.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

const maxPending = 64

// MQTTSink publishes each value as a retained message under prefix/key.
// Publishing never waits; failures surface through Err.
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
	logger *zap.Logger

	mu      sync.Mutex
	pending []mqtt.Token
	err     error
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub Publisher, prefix string, qos byte, logger *zap.Logger) *MQTTSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTSink{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		logger: logger,
	}
}

var topicReplacer = strings.NewReplacer(" ", "_", "+", "_", "#", "_")

// Topic returns the topic a key is published on.
func (s *MQTTSink) Topic(key string) string {
	t := topicReplacer.Replace(strings.ToLower(key))
	if s.prefix == "" {
		return t
	}
	return s.prefix + "/" + t
}

func (s *MQTTSink) PutNumber(key string, value float64) {
	s.publish(key, strconv.FormatFloat(value, 'g', -1, 64))
}

func (s *MQTTSink) PutBoolean(key string, value bool) {
	s.publish(key, strconv.FormatBool(value))
}

func (s *MQTTSink) publish(key, payload string) {
	token := s.pub.Publish(s.Topic(key), s.qos, true, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, token)
	s.reap()
}

// reap drops finished tokens and keeps the pending list bounded.
func (s *MQTTSink) reap() {
	kept := s.pending[:0]
	for _, t := range s.pending {
		select {
		case <-t.Done():
			if err := t.Error(); err != nil {
				if s.err == nil {
					s.logger.Warn("mqtt publish failed", zap.Error(err))
				}
				s.err = err
			}
		default:
			kept = append(kept, t)
		}
	}
	if len(kept) > maxPending {
		kept = kept[len(kept)-maxPending:]
	}
	s.pending = kept
}

// Err returns the most recent publish failure.
func (s *MQTTSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reap()
	return s.err
}
