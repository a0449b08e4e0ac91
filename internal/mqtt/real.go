package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 1000

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string
	BufferSize int
	// OnCommand receives commands from <prefix>/<door>/set. It runs on its own goroutine.
	OnCommand CommandFunc
	Logger    *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onCommand CommandFunc
	log       *slog.Logger

	mu  sync.Mutex
	buf *ring[message]
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is retried in the background if the broker is not reachable yet.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "garage-door"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &RealPublisher{
		topics:    Topics{Prefix: opts.Prefix},
		onCommand: opts.OnCommand,
		log:       opts.Logger,
		buf:       newRing[message](opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System(), will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt: connection lost", "error", err)
		})

	p.client = paho.NewClient(copts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("mqtt: broker not reachable yet, retrying in background", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Info("mqtt: connected")

	token := c.Subscribe(p.topics.SetAll(), 1, func(_ paho.Client, m paho.Message) {
		topic, payload := m.Topic(), m.Payload()
		go dispatch(p.topics, topic, payload, p.onCommand, p.log)
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		p.log.Warn("mqtt: subscribe failed", "topic", p.topics.SetAll(), "error", token.Error())
	}

	p.mu.Lock()
	pending, dropped := p.buf.drain()
	p.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	p.log.Info("mqtt: replaying buffered messages", "count", len(pending), "dropped", dropped)
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Warn("mqtt: replay failed", "topic", m.topic, "error", err)
		}
	}
}

// Publish sends a door event and the door's retained status.
func (p *RealPublisher) Publish(door string, event logic.Event) error {
	payload, err := FormatPayload(door, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	msgs := []message{{topic: p.topics.Events(door), payload: payload}}
	switch event.Type {
	case logic.EventObstruction, logic.EventClear:
		obstructed := "false"
		if event.Type == logic.EventObstruction {
			obstructed = "true"
		}
		msgs = append(msgs, message{topic: p.topics.Obstruction(door), payload: []byte(obstructed), qos: 1, retained: true})
	default:
		msgs = append(msgs, message{topic: p.topics.Status(door), payload: []byte(event.Status), qos: 1, retained: true})
	}

	for _, m := range msgs {
		if err := p.publish(m); err != nil {
			return err
		}
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(message{topic: p.topics.System(), payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m message) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		firstDrop := p.buf.push(m)
		p.mu.Unlock()
		if firstDrop {
			p.log.Warn("mqtt: offline buffer full, dropping oldest")
		}
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m message) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
