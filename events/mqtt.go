package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"voice-recliner/logging"
)

const (
	DefaultTopic     = "voice-recliner"
	DefaultQueueSize = 64

	publishTimeout = 5 * time.Second
)

type MQTTConfig struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QueueSize int
	Logger    *zap.Logger
}

// Client is the subset of the paho client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client Client
	topic  string
	queue  chan Event
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewMQTT connects to the broker and starts the publishing worker.
func NewMQTT(cfg *MQTTConfig) (*MQTTPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Broker == "" {
		return nil, fmt.Errorf("broker is empty")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg), nil
}

func newPublisher(client Client, cfg *MQTTConfig) *MQTTPublisher {
	topic := strings.TrimRight(cfg.Topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	logger := logging.OrNop(cfg.Logger)

	p := &MQTTPublisher{
		client: client,
		topic:  topic,
		queue:  make(chan Event, size),
		logger: logger,
		done:   make(chan struct{}),
	}

	p.wg.Add(1)
	go p.worker()

	return p
}

// Publish queues e. Events are dropped when the queue is full or the
// publisher is closed.
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- e:
	case <-ctx.Done():
	default:
		p.logger.Warn("event queue full, dropping event", zap.String("type", string(e.Type)))
	}
}

func (p *MQTTPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.client.Disconnect(250)
	})
}

func (p *MQTTPublisher) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case e := <-p.queue:
			if err := p.send(e); err != nil {
				p.logger.Warn("failed to publish event", zap.Error(err))
			}
		}
	}
}

func (p *MQTTPublisher) send(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	topic := p.topic + "/" + string(e.Type)

	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}
