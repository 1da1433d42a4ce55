// Package mqtt publishes telemetry readings to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"cansat-altimeter/internal/telemetry"
)

var ErrTimeout = errors.New("mqtt: timed out")

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	Username string
	Password string
	Timeout  time.Duration
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

var newClient = func(opts *paho.ClientOptions) client {
	return paho.NewClient(opts)
}

type Publisher struct {
	cfg    Config
	client client
}

// Connect dials the broker and waits up to cfg.Timeout for the session.
// The client reconnects on its own after a later connection loss.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := newClient(opts)
	if err := wait(c.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	return &Publisher{cfg: cfg, client: c}, nil
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) Topic() string { return p.cfg.Topic }

// Emit publishes r as JSON on the configured topic.
func (p *Publisher) Emit(r telemetry.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	return p.Publish(p.cfg.Topic, payload)
}

func (p *Publisher) Publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: publish %s: not connected", topic)
	}
	if err := wait(p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload), p.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func wait(t paho.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return t.Error()
}
