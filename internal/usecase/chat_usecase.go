package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/domain/repository"
	"coursehub/internal/domain/service"
	"coursehub/internal/infrastructure/ratelimit"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
	"coursehub/pkg/utils"
)

type ChatUseCase struct {
	convRepo       repository.ConversationRepository
	msgRepo        repository.MessageRepository
	userRepo       repository.UserRepository
	publisher      EventPublisher
	presence       service.PresenceRegistry
	attachments    service.AttachmentGateway
	rewards        service.RewardNotifier
	rateLimiter    *ratelimit.RateLimiter
	maxAttachments int

	locks  *keyedMutex
	direct singleflight.Group
	now    func() time.Time
}

func NewChatUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	publisher EventPublisher,
	presence service.PresenceRegistry,
	attachments service.AttachmentGateway,
	rewards service.RewardNotifier,
	rateLimiter *ratelimit.RateLimiter,
	maxAttachments int,
) *ChatUseCase {
	return &ChatUseCase{
		convRepo:       convRepo,
		msgRepo:        msgRepo,
		userRepo:       userRepo,
		publisher:      publisher,
		presence:       presence,
		attachments:    attachments,
		rewards:        rewards,
		rateLimiter:    rateLimiter,
		maxAttachments: maxAttachments,
		locks:          newKeyedMutex(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

type SendMessageInput struct {
	ConversationID string
	To             string
	Content        string
	Attachments    []entity.Attachment
	ClientID       string
}

type TypingInput struct {
	ConversationID string
	To             string
	Typing         bool
}

// ConversationResponse is a conversation as listed for one user.
type ConversationResponse struct {
	*entity.Conversation
	Peer   *entity.UserSummary `json:"peer,omitempty"`
	Online []string            `json:"online"`
}

func (uc *ChatUseCase) GetOrCreateDirect(ctx context.Context, userID, otherID string) (*entity.Conversation, error) {
	if otherID == "" {
		return nil, errors.BadRequest("Recipient is required", nil)
	}
	if otherID == userID {
		return nil, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	other, err := uc.userRepo.GetByID(ctx, otherID)
	if err != nil {
		logger.Error("GetOrCreateDirect Error: recipient %s: %v", otherID, err)
		return nil, err
	}
	if !other.IsActive() {
		return nil, errors.Forbidden("Recipient is not available for chat", nil)
	}

	if conv, err := uc.convRepo.FindDirect(ctx, userID, otherID); err == nil {
		return conv, nil
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	v, err, _ := uc.direct.Do(entity.DirectKey(userID, otherID), func() (interface{}, error) {
		return uc.convRepo.CreateDirect(ctx, entity.NewDirectConversation(userID, otherID, uc.now()))
	})
	if err != nil {
		logger.Error("GetOrCreateDirect Error: %s/%s: %v", userID, otherID, err)
		return nil, err
	}
	return v.(*entity.Conversation).Clone(), nil
}

func (uc *ChatUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}
	return conv, nil
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string) ([]*ConversationResponse, error) {
	convs, err := uc.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		logger.Error("ListConversations Error: user %s: %v", userID, err)
		return nil, err
	}

	var peerIDs []string
	for _, c := range convs {
		if peer := c.OtherParticipant(userID); peer != "" {
			peerIDs = append(peerIDs, peer)
		}
	}
	peers := make(map[string]*entity.User)
	if len(peerIDs) > 0 {
		users, err := uc.userRepo.GetByIDs(ctx, dedupe(peerIDs))
		if err != nil {
			logger.Warn("ListConversations Warning: peer lookup failed: %v", err)
		}
		for _, u := range users {
			peers[u.ID] = u
		}
	}

	online := make(map[string]bool)
	out := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp := &ConversationResponse{Conversation: c, Online: []string{}}
		if u, ok := peers[c.OtherParticipant(userID)]; ok {
			s := u.Summary()
			resp.Peer = &s
		}
		for _, p := range c.OthersThan(userID) {
			isOnline, seen := online[p]
			if !seen {
				isOnline = uc.isOnline(ctx, p)
				online[p] = isOnline
			}
			if isOnline {
				resp.Online = append(resp.Online, p)
			}
		}
		if resp.Peer != nil {
			resp.Peer.Online = online[resp.Peer.ID]
		}
		out = append(out, resp)
	}
	return out, nil
}

func (uc *ChatUseCase) isOnline(ctx context.Context, userID string) bool {
	if uc.presence == nil {
		return false
	}
	online, err := uc.presence.IsOnline(ctx, userID)
	if err != nil {
		logger.Warn("Presence lookup for %s failed: %v", userID, err)
		return false
	}
	return online
}

// GetMessages returns one page of history in display order, oldest first.
func (uc *ChatUseCase) GetMessages(ctx context.Context, userID, conversationID string, page, limit int) ([]*entity.Message, int64, utils.PaginationParams, error) {
	params := utils.NewPaginationParams(page, limit)

	if _, err := uc.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, 0, params, err
	}

	msgs, total, err := uc.msgRepo.ListNewestFirst(ctx, conversationID, params.PageSize, params.Offset)
	if err != nil {
		logger.Error("GetMessages Error: conversation %s: %v", conversationID, err)
		return nil, 0, params, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, total, params, nil
}

// SendMessage is the single send path for socket and REST clients.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	return uc.send(ctx, senderID, input, nil)
}

// SendWithUploads stores files through the attachment gateway first. If any
// upload fails the already stored files are removed and nothing is sent.
func (uc *ChatUseCase) SendWithUploads(ctx context.Context, senderID string, input SendMessageInput, files []service.UploadFile) (*entity.Message, error) {
	return uc.send(ctx, senderID, input, files)
}

func (uc *ChatUseCase) send(ctx context.Context, senderID string, input SendMessageInput, files []service.UploadFile) (*entity.Message, error) {
	if err := allow(uc.rateLimiter, senderID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}
	if err := uc.validateBody(input, len(files)); err != nil {
		return nil, err
	}

	conv, err := uc.resolveForSend(ctx, senderID, input.ConversationID, input.To)
	if err != nil {
		logger.Error("SendMessage Error: sender %s: %v", senderID, err)
		return nil, err
	}

	uploaded, err := uc.upload(ctx, conv.ID, files)
	if err != nil {
		return nil, err
	}
	input.Attachments = append(append([]entity.Attachment{}, input.Attachments...), uploaded...)

	msg, err := uc.deliver(ctx, senderID, conv, input)
	if err != nil {
		uc.discard(uploaded)
		return nil, err
	}
	return msg, nil
}

func (uc *ChatUseCase) validateBody(input SendMessageInput, fileCount int) error {
	if utf8.RuneCountInString(input.Content) > entity.MaxContentLength {
		return errors.BadRequest(entity.ErrContentTooLong.Error(), entity.ErrContentTooLong)
	}
	count := len(input.Attachments) + fileCount
	if strings.TrimSpace(input.Content) == "" && count == 0 {
		return errors.BadRequest(entity.ErrEmptyMessage.Error(), entity.ErrEmptyMessage)
	}
	if uc.maxAttachments > 0 && count > uc.maxAttachments {
		return errors.BadRequest("Too many attachments", nil)
	}
	for _, a := range input.Attachments {
		if a.URL == "" {
			return errors.BadRequest(entity.ErrAttachmentMissing.Error(), entity.ErrAttachmentMissing)
		}
	}
	return nil
}

func (uc *ChatUseCase) resolveForSend(ctx context.Context, senderID, conversationID, to string) (*entity.Conversation, error) {
	switch {
	case conversationID != "":
		return uc.GetConversation(ctx, senderID, conversationID)
	case to != "":
		return uc.GetOrCreateDirect(ctx, senderID, to)
	default:
		return nil, errors.BadRequest("conversationId or to is required", nil)
	}
}

func (uc *ChatUseCase) upload(ctx context.Context, conversationID string, files []service.UploadFile) ([]entity.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if uc.attachments == nil {
		return nil, errors.Upstream("Attachment storage is not configured", nil)
	}

	uploaded := make([]entity.Attachment, 0, len(files))
	for _, f := range files {
		att, err := uc.attachments.Upload(ctx, conversationID, f)
		if err != nil {
			logger.Error("SendMessage Error: upload of %s to %s failed: %v", f.Name, conversationID, err)
			uc.discard(uploaded)
			var appErr *errors.AppError
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, errors.Upstream("Attachment storage unavailable", err)
		}
		uploaded = append(uploaded, *att)
	}
	return uploaded, nil
}

func (uc *ChatUseCase) discard(atts []entity.Attachment) {
	if len(atts) == 0 || uc.attachments == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := range atts {
		if err := uc.attachments.Delete(ctx, &atts[i]); err != nil {
			logger.Warn("Failed to remove orphaned attachment %s: %v", atts[i].FileName, err)
		}
	}
}

// deliver persists the message, applies it to the conversation and fans it
// out. The per-conversation lock keeps the message and unread events of one
// conversation in creation order on every connection.
func (uc *ChatUseCase) deliver(ctx context.Context, senderID string, conv *entity.Conversation, input SendMessageInput) (*entity.Message, error) {
	unlock := uc.locks.Lock(conv.ID)
	defer unlock()

	attachments := input.Attachments
	if attachments == nil {
		attachments = []entity.Attachment{}
	}
	msg := &entity.Message{
		ID:             uuid.New().String(),
		SenderID:       senderID,
		ConversationID: conv.ID,
		ReceiverID:     conv.OtherParticipant(senderID),
		Content:        input.Content,
		Attachments:    attachments,
		CreatedAt:      uc.now(),
	}

	if err := uc.msgRepo.Create(ctx, msg); err != nil {
		logger.Error("SendMessage Error: failed to store message in %s: %v", conv.ID, err)
		return nil, err
	}

	updated, err := uc.convRepo.Update(ctx, conv.ID, func(c *entity.Conversation) error {
		if !c.HasParticipant(senderID) {
			return errors.Forbidden("User is not a participant in this conversation", nil)
		}
		c.RecordIncoming(msg)
		return nil
	})
	if err != nil {
		logger.Error("SendMessage Error: message %s stored but conversation %s not updated: %v", msg.ID, conv.ID, err)
		return nil, err
	}

	uc.publisher.SendToUsers(updated.Participants, event.New(event.TypeMessage, event.MessagePayload{
		ConversationID: updated.ID,
		Message:        msg,
		ClientID:       input.ClientID,
	}))
	uc.publisher.SendToUsers(updated.Participants, event.New(event.TypeUnread, event.UnreadPayload{
		ConversationID: updated.ID,
		Unread:         updated.UnreadSnapshot(),
	}))

	notifyReward(uc.rewards, entity.RewardEvent{
		Type:           entity.RewardMessageSent,
		UserID:         senderID,
		ConversationID: updated.ID,
		OccurredAt:     msg.CreatedAt,
	})
	return msg, nil
}

// MarkRead clears the reader's unread counter. An empty messageID means
// everything up to the conversation's last message.
func (uc *ChatUseCase) MarkRead(ctx context.Context, userID, conversationID, messageID string) (*entity.Conversation, error) {
	if err := allow(uc.rateLimiter, userID, ratelimit.ActionRead); err != nil {
		return nil, err
	}

	conv, err := uc.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	if messageID == "" {
		messageID = conv.LastMessage
	}
	var messageAt time.Time
	if messageID != "" {
		msg, err := uc.msgRepo.GetByID(ctx, conversationID, messageID)
		if err != nil {
			return nil, err
		}
		messageAt = msg.CreatedAt
	}

	// unread snapshots of one conversation go out in commit order
	unlock := uc.locks.Lock(conversationID)
	defer unlock()

	updated, err := uc.convRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if !c.HasParticipant(userID) {
			return errors.Forbidden("User is not a participant in this conversation", nil)
		}
		c.MarkRead(userID, messageID, messageAt, uc.now())
		return nil
	})
	if err != nil {
		logger.Error("MarkRead Error: user %s conversation %s: %v", userID, conversationID, err)
		return nil, err
	}

	st := updated.ParticipantStates[userID]
	uc.publisher.SendToUsers(updated.OthersThan(userID), event.New(event.TypeRead, event.ReadPayload{
		ConversationID: updated.ID,
		UserID:         userID,
		MessageID:      st.LastReadMessage,
	}))
	uc.publisher.SendToUsers([]string{userID}, event.New(event.TypeUnread, event.UnreadPayload{
		ConversationID: updated.ID,
		Unread:         updated.UnreadSnapshot(),
	}))
	return updated, nil
}

// HandleTyping relays a typing indicator to the other participants. It
// never creates a conversation and never stores anything.
func (uc *ChatUseCase) HandleTyping(ctx context.Context, userID string, input TypingInput) error {
	if uc.rateLimiter != nil {
		if ok, _ := uc.rateLimiter.Allow(userID, ratelimit.ActionTyping); !ok {
			return nil
		}
	}

	var conv *entity.Conversation
	var err error
	switch {
	case input.ConversationID != "":
		conv, err = uc.convRepo.GetByID(ctx, input.ConversationID)
	case input.To != "":
		conv, err = uc.convRepo.FindDirect(ctx, userID, input.To)
	default:
		return errors.BadRequest("conversationId or to is required", nil)
	}
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this conversation", nil)
	}

	uc.publisher.SendToUsers(conv.OthersThan(userID), event.New(event.TypeTyping, event.TypingPayload{
		ConversationID: conv.ID,
		From:           userID,
		Typing:         input.Typing,
	}))
	return nil
}

// Contacts lists every user sharing at least one conversation with userID.
func (uc *ChatUseCase) Contacts(ctx context.Context, userID string) ([]string, error) {
	convs, err := uc.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range convs {
		ids = append(ids, c.OthersThan(userID)...)
	}
	return dedupe(ids), nil
}
