// Package publish fans run results out to a message broker so presentation
// collaborators can follow deliveries as runs finish.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// Sink delivers one payload to a topic.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Topics names where each message kind goes.
type Topics struct {
	Deliveries string
	Runs       string
}

// DefaultTopics returns the topic names for a broker kind. MQTT uses "/" levels, Kafka
// uses "." separated names.
func DefaultTopics(kind string) Topics {
	if kind == "kafka" {
		return Topics{Deliveries: "dinebot.deliveries", Runs: "dinebot.runs"}
	}
	return Topics{Deliveries: "dinebot/deliveries", Runs: "dinebot/runs"}
}

// DeliveryMessage is published once per delivery record.
type DeliveryMessage struct {
	RunID    string             `json:"run_id"`
	Scenario string             `json:"scenario"`
	Delivery sim.DeliveryRecord `json:"delivery"`
}

// RunMessage is published once per run, after its deliveries.
type RunMessage struct {
	RunID     string         `json:"run_id"`
	Scenario  string         `json:"scenario"`
	Provider  string         `json:"provider"`
	Ticks     int64          `json:"ticks"`
	Cancelled bool           `json:"cancelled"`
	Truncated bool           `json:"truncated"`
	Metrics   *sim.Metrics   `json:"metrics"`
	Orders    sim.OrderStats `json:"orders"`
}

// Publisher encodes reports and hands them to a Sink.
type Publisher struct {
	sink   Sink
	topics Topics
}

func NewPublisher(sink Sink, topics Topics) *Publisher {
	return &Publisher{sink: sink, topics: topics}
}

// PublishReport sends every delivery record, then the run summary. It stops at the
// first failed send.
func (p *Publisher) PublishReport(ctx context.Context, rep *sim.Report) error {
	for _, d := range rep.Deliveries {
		msg := DeliveryMessage{RunID: rep.RunID, Scenario: rep.Scenario, Delivery: d}
		if err := p.send(ctx, p.topics.Deliveries, msg); err != nil {
			return fmt.Errorf("publish delivery %s: %w", d.OrderID, err)
		}
	}
	msg := RunMessage{
		RunID:     rep.RunID,
		Scenario:  rep.Scenario,
		Provider:  rep.Provider,
		Ticks:     rep.Ticks,
		Cancelled: rep.Cancelled,
		Truncated: rep.Truncated,
		Metrics:   rep.Metrics,
		Orders:    rep.Orders,
	}
	if err := p.send(ctx, p.topics.Runs, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", rep.RunID, err)
	}
	logrus.Debugf("published run %s: %d deliveries", rep.RunID, len(rep.Deliveries))
	return nil
}

func (p *Publisher) send(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return p.sink.Publish(ctx, topic, data)
}

func (p *Publisher) Close() error { return p.sink.Close() }

// Open connects a sink of the given kind ("mqtt" or "kafka"). MQTT uses the first broker
// URL, e.g. tcp://localhost:1883; Kafka spreads writes over all brokers.
func Open(kind string, brokers []string, clientID string) (Sink, error) {
	switch kind {
	case "mqtt":
		if len(brokers) == 0 {
			return nil, fmt.Errorf("mqtt: no broker configured")
		}
		sink, err := DialMQTT(brokers[0], clientID)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "kafka":
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka: no brokers configured")
		}
		return NewKafkaSink(brokers), nil
	default:
		return nil, fmt.Errorf("unknown messaging backend: %s", kind)
	}
}

// mqttPublisher is the part of mqtt.Client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTSink publishes with QoS 1, not retained.
type MQTTSink struct {
	client  mqttPublisher
	close   func()
	timeout time.Duration
}

// DialMQTT connects to broker and returns a sink over the connection.
func DialMQTT(broker, clientID string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	logrus.Infof("mqtt connected to %s", broker)
	return &MQTTSink{client: client, close: func() { client.Disconnect(250) }, timeout: 10 * time.Second}, nil
}

func (s *MQTTSink) Publish(ctx context.Context, topic string, payload []byte) error {
	token := s.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return fmt.Errorf("mqtt publish to %s: timed out after %s", topic, s.timeout)
	}
}

func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink writes each payload as one Kafka message on the named topic.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string) *KafkaSink {
	return &KafkaSink{w: &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}}
}

func (s *KafkaSink) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.w.WriteMessages(ctx, kafkago.Message{Topic: topic, Value: payload})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
