package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/catalog/domain"
)

// consumed turns a produced message into what a consumer would receive
func consumed(t *testing.T, msg *sarama.ProducerMessage) *sarama.ConsumerMessage {
	t.Helper()
	value, err := msg.Value.Encode()
	require.NoError(t, err)

	out := &sarama.ConsumerMessage{Topic: msg.Topic, Value: value}
	for i := range msg.Headers {
		out.Headers = append(out.Headers, &msg.Headers[i])
	}
	return out
}

func TestKafkaPublisher_RoundTrip(t *testing.T) {
	p := newKafkaPublisher(nil, "")
	event := Event{Kind: EventContent, FarmID: "F1", SKU: "A", Field: domain.FieldLong, Content: "Slow cooked", Seq: 4}

	msg, err := p.message(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, TopicProductEvents, msg.Topic)
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "F1/A", string(key))

	rec := &recordingHandler{}
	(&groupHandler{handler: rec}).handleMessage(context.Background(), consumed(t, msg))

	require.Len(t, rec.events, 1)
	assert.Equal(t, event, rec.events[0])
}

func TestKafkaPublisher_KeyFallsBackToIndex(t *testing.T) {
	p := newKafkaPublisher(nil, "events")
	msg, err := p.message(context.Background(), Event{Kind: EventProgress, FarmID: "F1", ProductIndex: 3})
	require.NoError(t, err)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "F1/index_3", string(key))
	assert.Equal(t, "events", msg.Topic)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]interface{}
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		assert.Equal(t, "quota exceeded", decoded["message"])
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, "")
	event := Event{Kind: EventError, ProductIndex: 1, Field: domain.FieldAll, Message: "quota exceeded"}

	require.NoError(t, p.Publish(context.Background(), event))
	assert.ErrorIs(t, p.Publish(context.Background(), event), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestRedisEnvelope_RoundTrip(t *testing.T) {
	event := Event{Kind: EventProgress, ProductIndex: 2, Field: domain.FieldShort, Progress: 55, Status: domain.PhaseGenerating}

	payload, err := encodeEnvelope(context.Background(), event)
	require.NoError(t, err)

	rec := &recordingHandler{}
	NewRedisListener(nil, "", rec).handlePayload(context.Background(), string(payload))

	require.Len(t, rec.events, 1)
	assert.Equal(t, event, rec.events[0])
}
