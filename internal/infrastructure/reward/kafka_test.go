package reward

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/domain/entity"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaNotifierEncodesEvent(t *testing.T) {
	w := &recordingWriter{}
	n := &KafkaNotifier{writer: w}

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := n.Notify(context.Background(), entity.RewardEvent{
		Type:           entity.RewardMessageSent,
		UserID:         "u1",
		ConversationID: "c1",
		OccurredAt:     at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "u1", string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, entity.RewardMessageSent, string(msg.Headers[0].Value))

	var decoded entity.RewardEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "c1", decoded.ConversationID)
	assert.True(t, at.Equal(decoded.OccurredAt))
}
