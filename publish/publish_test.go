package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

type sent struct {
	topic   string
	payload []byte
}

// memorySink records payloads; failAfter > 0 makes the n-th publish fail.
type memorySink struct {
	sent      []sent
	failAfter int
	closed    bool
}

func (m *memorySink) Publish(_ context.Context, topic string, payload []byte) error {
	if m.failAfter > 0 && len(m.sent)+1 == m.failAfter {
		return errors.New("broker down")
	}
	m.sent = append(m.sent, sent{topic, payload})
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func sampleReport() *sim.Report {
	m := sim.NewMetrics()
	recs := []sim.DeliveryRecord{
		{OrderID: "o1", RobotID: "r1", TableID: "T1", Success: true, TicksElapsed: 3, TerminalReason: sim.ReasonDelivered},
		{OrderID: "o2", RobotID: "r2", TableID: "T2", TerminalReason: sim.ReasonPlanningFailure},
	}
	for _, r := range recs {
		m.Add(r)
	}
	return &sim.Report{RunID: "run-9", Scenario: "lunch", Provider: "rules", Ticks: 12, Deliveries: recs, Metrics: m}
}

func TestPublisher_PublishReport_DeliveriesThenRun(t *testing.T) {
	// GIVEN a publisher over an in-memory sink
	sink := &memorySink{}
	p := NewPublisher(sink, DefaultTopics("mqtt"))

	// WHEN a report with two deliveries is published
	require.NoError(t, p.PublishReport(context.Background(), sampleReport()))

	// THEN two delivery messages precede one run message
	require.Len(t, sink.sent, 3)
	assert.Equal(t, "dinebot/deliveries", sink.sent[0].topic)
	assert.Equal(t, "dinebot/deliveries", sink.sent[1].topic)
	assert.Equal(t, "dinebot/runs", sink.sent[2].topic)

	var d DeliveryMessage
	require.NoError(t, json.Unmarshal(sink.sent[1].payload, &d))
	assert.Equal(t, "run-9", d.RunID)
	assert.Equal(t, "o2", d.Delivery.OrderID)
	assert.Equal(t, sim.ReasonPlanningFailure, d.Delivery.TerminalReason)

	var r RunMessage
	require.NoError(t, json.Unmarshal(sink.sent[2].payload, &r))
	assert.Equal(t, "rules", r.Provider)
	assert.Equal(t, 1, r.Metrics.Successful)
}

func TestPublisher_StopsAtFirstFailure(t *testing.T) {
	sink := &memorySink{failAfter: 2}
	p := NewPublisher(sink, DefaultTopics("kafka"))

	err := p.PublishReport(context.Background(), sampleReport())

	assert.ErrorContains(t, err, "o2")
	assert.Len(t, sink.sent, 1)
	require.NoError(t, p.Close())
	assert.True(t, sink.closed)
}

func TestDefaultTopics(t *testing.T) {
	assert.Equal(t, Topics{Deliveries: "dinebot.deliveries", Runs: "dinebot.runs"}, DefaultTopics("kafka"))
	assert.Equal(t, Topics{Deliveries: "dinebot/deliveries", Runs: "dinebot/runs"}, DefaultTopics("mqtt"))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("amqp", []string{"x"}, "id")
	assert.ErrorContains(t, err, "unknown messaging backend")
	_, err = Open("kafka", nil, "id")
	assert.Error(t, err)
	_, err = Open("mqtt", nil, "id")
	assert.Error(t, err)
}

// fakeToken is a completed (or never completing) mqtt.Token.
type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type fakeMQTT struct {
	topics []string
	qos    []byte
	token  *fakeToken
}

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, _ any) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.qos = append(f.qos, qos)
	return f.token
}

func TestMQTTSink_Publish(t *testing.T) {
	t.Run("completed token", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		client := &fakeMQTT{token: &fakeToken{done: done}}
		sink := &MQTTSink{client: client, timeout: time.Second}

		require.NoError(t, sink.Publish(context.Background(), "dinebot/runs", []byte("{}")))
		assert.Equal(t, []string{"dinebot/runs"}, client.topics)
		assert.Equal(t, []byte{1}, client.qos)
	})

	t.Run("token error", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		sink := &MQTTSink{client: &fakeMQTT{token: &fakeToken{done: done, err: errors.New("not authorized")}}, timeout: time.Second}
		assert.ErrorContains(t, sink.Publish(context.Background(), "t", nil), "not authorized")
	})

	t.Run("cancelled context", func(t *testing.T) {
		sink := &MQTTSink{client: &fakeMQTT{token: &fakeToken{done: make(chan struct{})}}, timeout: time.Minute}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, sink.Publish(ctx, "t", nil), context.Canceled)
	})

	t.Run("timeout", func(t *testing.T) {
		sink := &MQTTSink{client: &fakeMQTT{token: &fakeToken{done: make(chan struct{})}}, timeout: 10 * time.Millisecond}
		assert.ErrorContains(t, sink.Publish(context.Background(), "t", nil), "timed out")
	})
}

type fakeWriter struct {
	msgs   []kafkago.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_WritesTopicAndValue(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{w: w}

	require.NoError(t, sink.Publish(context.Background(), "dinebot.runs", []byte(`{"run_id":"x"}`)))
	require.NoError(t, sink.Close())

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "dinebot.runs", w.msgs[0].Topic)
	assert.JSONEq(t, `{"run_id":"x"}`, string(w.msgs[0].Value))
	assert.True(t, w.closed)
}
