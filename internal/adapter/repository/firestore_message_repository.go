package repository

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) collection(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection).Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if err := msg.Validate(); err != nil {
		return errors.BadRequest(err.Error(), err)
	}

	if _, err := r.collection(msg.ConversationID).Doc(msg.ID).Create(ctx, msg); err != nil {
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.collection(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &msg, nil
}

func (r *firestoreMessageRepository) ListNewestFirst(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.collection(conversationID).OrderBy("createdAt", firestore.Desc)

	total, err := r.count(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	messages := make([]*entity.Message, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			log.Printf("Error parsing message %s: %v", doc.Ref.ID, err)
			continue
		}
		messages = append(messages, &msg)
	}

	return messages, total, nil
}

func (r *firestoreMessageRepository) count(ctx context.Context, query firestore.Query) (int64, error) {
	result, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, errors.Internal("Failed to count messages", err)
	}

	v, ok := result["total"].(*firestorepb.Value)
	if !ok {
		return 0, errors.Internal("Unexpected count aggregation result", nil)
	}
	return v.GetIntegerValue(), nil
}
