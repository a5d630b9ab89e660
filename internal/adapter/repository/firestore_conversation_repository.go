package repository

import (
	"context"
	stderrors "errors"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(conversationsCollection).Doc(id)
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if err := conv.Validate(); err != nil {
		return errors.Internal("Invalid conversation", err)
	}

	_, err := r.doc(conv.ID).Create(ctx, conv)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Conversation already exists")
		}
		return errors.Internal("Failed to create conversation", err)
	}
	return nil
}

// CreateDirect relies on the pair-derived document id: the second of two
// racing creators gets AlreadyExists and reads the winner's document.
func (r *firestoreConversationRepository) CreateDirect(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	if err := conv.Validate(); err != nil {
		return nil, errors.Internal("Invalid conversation", err)
	}

	_, err := r.doc(conv.ID).Create(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, errors.Internal("Failed to create conversation", err)
	}
	return r.GetByID(ctx, conv.ID)
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return decodeConversation(doc)
}

func (r *firestoreConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	return r.GetByID(ctx, entity.DirectConversationID(userA, userB))
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	return r.list(ctx, r.client.Collection(conversationsCollection).Where("participants", "array-contains", userID))
}

func (r *firestoreConversationRepository) ListByPendingInvite(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	return r.list(ctx, r.client.Collection(conversationsCollection).Where("pendingInvites", "array-contains", userID))
}

// list sorts in memory: ordering by activity would need a composite
// index on a field that is absent for fresh conversations.
func (r *firestoreConversationRepository) list(ctx context.Context, query firestore.Query) ([]*entity.Conversation, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var convs []*entity.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list conversations", err)
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			log.Printf("Skipping unreadable conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		convs = append(convs, conv)
	}

	entity.SortByActivity(convs)
	return convs, nil
}

// Update runs fn inside a Firestore transaction. Concurrent updates of the
// same document make the transaction retry with fresh data, so fn may run
// more than once.
func (r *firestoreConversationRepository) Update(ctx context.Context, id string, fn repository.Mutator) (*entity.Conversation, error) {
	ref := r.doc(id)
	var updated *entity.Conversation

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Conversation", err)
			}
			return err
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}
		if err := conv.Validate(); err != nil {
			return errors.Internal("Conversation update broke an invariant", err)
		}

		updated = conv
		return tx.Set(ref, conv)
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.Internal("Failed to update conversation", err)
	}

	return updated, nil
}

// Delete removes the document in a transaction first, so no send can
// commit against it afterwards, then sweeps the messages subcollection.
func (r *firestoreConversationRepository) Delete(ctx context.Context, id string, check repository.Mutator) (*entity.Conversation, error) {
	ref := r.doc(id)
	var deleted *entity.Conversation

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Conversation", err)
			}
			return err
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(conv); err != nil {
				return err
			}
		}

		deleted = conv
		return tx.Delete(ref)
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.Internal("Failed to delete conversation", err)
	}

	return deleted, r.deleteMessages(ctx, ref)
}

func (r *firestoreConversationRepository) deleteMessages(ctx context.Context, ref *firestore.DocumentRef) error {
	bw := r.client.BulkWriter(ctx)
	defer bw.End()

	iter := ref.Collection(messagesCollection).DocumentRefs(ctx)
	for {
		msgRef, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return errors.Internal("Failed to list conversation messages", err)
		}
		if _, err := bw.Delete(msgRef); err != nil {
			return errors.Internal("Failed to queue message deletion", err)
		}
	}
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conv.ID = doc.Ref.ID
	if conv.ParticipantStates == nil {
		conv.ParticipantStates = make(map[string]*entity.ParticipantState)
	}
	if conv.PendingInvites == nil {
		conv.PendingInvites = []string{}
	}
	return &conv, nil
}
