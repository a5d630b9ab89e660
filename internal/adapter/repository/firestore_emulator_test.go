package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/domain/entity"
)

// These tests talk to the Firestore emulator and are skipped without it.
func emulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), "coursehub-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestFirestoreConcurrentRecordIncoming(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	repo := NewFirestoreConversationRepository(client)

	id := "g_" + uuid.NewString()
	conv := entity.NewGroupConversation(id, "a", "Load test", "c1", time.Now())
	conv.Accept("b", time.Now())
	require.NoError(t, repo.Create(ctx, conv))
	t.Cleanup(func() { repo.Delete(ctx, id, nil) })

	const sends = 10
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &entity.Message{ID: fmt.Sprintf("m%d", i), SenderID: "a", Content: "x", CreatedAt: time.Now()}
			_, err := repo.Update(ctx, id, func(c *entity.Conversation) error {
				c.RecordIncoming(msg)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sends, stored.ParticipantStates["b"].Unread)
	assert.Equal(t, 0, stored.ParticipantStates["a"].Unread)
}

func TestFirestoreDirectCreateIsIdempotent(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	repo := NewFirestoreConversationRepository(client)

	a, b := uuid.NewString(), uuid.NewString()
	first, err := repo.CreateDirect(ctx, entity.NewDirectConversation(a, b, time.Now()))
	require.NoError(t, err)
	second, err := repo.CreateDirect(ctx, entity.NewDirectConversation(b, a, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFirestoreMessagePaging(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	msgs := NewFirestoreMessageRepository(client)

	convID := "c_" + uuid.NewString()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, msgs.Create(ctx, &entity.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: convID,
			SenderID:       "a",
			Content:        "hi",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, total, err := msgs.ListNewestFirst(ctx, convID, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].ID)
}
