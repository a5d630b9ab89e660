package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/domain/service"
	"coursehub/internal/infrastructure/ratelimit"
	"coursehub/pkg/errors"
	"coursehub/pkg/utils"
)

func textFile(name, body string) service.UploadFile {
	return service.UploadFile{
		Name: name,
		Size: int64(len(body)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestGetOrCreateDirectReturnsSameConversation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.chat.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := f.chat.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, first.IsGroup)
	assert.ElementsMatch(t, []string{"alice", "bob"}, first.Participants)
}

func TestGetOrCreateDirectConcurrentCallers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := f.chat.GetOrCreateDirect(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	convs, err := f.convs.ListByParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestGetOrCreateDirectValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.chat.GetOrCreateDirect(ctx, "alice", "alice")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	_, err = f.chat.GetOrCreateDirect(ctx, "alice", "ghost")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.chat.GetOrCreateDirect(ctx, "alice", "sam")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestSendUpdatesUnreadForOthersOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob", "carol")

	const n = 5
	for i := 0; i < n; i++ {
		_, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	stored, err := f.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.ParticipantStates["bob"].Unread)
	assert.Equal(t, n, stored.ParticipantStates["carol"].Unread)
	assert.Equal(t, 0, stored.ParticipantStates["alice"].Unread)
	assert.Equal(t, stored.LastMessage, stored.ParticipantStates["alice"].LastReadMessage)
}

func TestSendFansOutMessageThenUnread(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	msg, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello", ClientID: "tmp-1"})
	require.NoError(t, err)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, event.TypeMessage, f.pub.events[0].evt.Type)
	assert.Equal(t, event.TypeUnread, f.pub.events[1].evt.Type)
	assert.ElementsMatch(t, []string{"alice", "bob"}, f.pub.events[0].users)

	var payload event.MessagePayload
	require.NoError(t, f.pub.events[0].evt.Decode(&payload))
	assert.Equal(t, msg.ID, payload.Message.ID)
	assert.Equal(t, "tmp-1", payload.ClientID)

	var unread event.UnreadPayload
	require.NoError(t, f.pub.events[1].evt.Decode(&unread))
	assert.Equal(t, map[string]int{"alice": 0, "bob": 1}, unread.Unread)

	assert.Eventually(t, func() bool { return f.rewards.count(entity.RewardMessageSent) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSendThenFetchRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{To: "bob", Content: "first"})
	require.NoError(t, err)
	msg, err := f.chat.SendMessage(ctx, "bob", SendMessageInput{To: "alice", Content: "second"})
	require.NoError(t, err)

	page, total, _, err := f.chat.GetMessages(ctx, "alice", msg.ConversationID, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, msg.ID, page[0].ID)
	assert.Equal(t, "alice", page[0].ReceiverID)
}

func TestGetMessagesReturnsChronologicalPages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	var sent []string
	for i := 0; i < 5; i++ {
		msg, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		sent = append(sent, msg.ID)
	}

	page, total, params, err := f.chat.GetMessages(ctx, "bob", conv.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, 2, params.PageSize)
	require.Len(t, page, 2)
	assert.Equal(t, []string{sent[3], sent[4]}, []string{page[0].ID, page[1].ID})

	page, _, _, err = f.chat.GetMessages(ctx, "bob", conv.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, sent[0], page[0].ID)

	_, _, params, err = f.chat.GetMessages(ctx, "bob", conv.ID, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, params.PageSize)
	assert.Equal(t, 1, params.Page)

	// a page far past the end is empty, not an error
	page, total, params, err = f.chat.GetMessages(ctx, "bob", conv.ID, 307445734561825862, 100)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, utils.MaxPage, params.Page)

	_, _, _, err = f.chat.GetMessages(ctx, "erin", conv.ID, 1, 10)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestSendRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	tests := []struct {
		name   string
		sender string
		input  SendMessageInput
		code   string
	}{
		{"non participant", "erin", SendMessageInput{ConversationID: conv.ID, Content: "hi"}, errors.CodeForbidden},
		{"empty content", "alice", SendMessageInput{ConversationID: conv.ID, Content: "   "}, errors.CodeBadRequest},
		{"too long", "alice", SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("a", 5001)}, errors.CodeBadRequest},
		{"no target", "alice", SendMessageInput{Content: "hi"}, errors.CodeBadRequest},
		{"unknown conversation", "alice", SendMessageInput{ConversationID: "nope", Content: "hi"}, errors.CodeNotFound},
		{"attachment without url", "alice", SendMessageInput{ConversationID: conv.ID, Attachments: []entity.Attachment{{OriginalName: "x.pdf"}}}, errors.CodeBadRequest},
		{"self", "alice", SendMessageInput{To: "alice", Content: "hi"}, errors.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chat.SendMessage(ctx, tt.sender, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	_, total, _, err := f.chat.GetMessages(ctx, "alice", conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.pub.events)
}

func TestConcurrentSendsDoNotLoseUnreadUpdates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob", "carol")

	const perUser = 15
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(sender string, i int) {
				defer wg.Done()
				_, err := f.chat.SendMessage(ctx, sender, SendMessageInput{ConversationID: conv.ID, Content: fmt.Sprintf("%s-%d", sender, i)})
				assert.NoError(t, err)
			}(sender, i)
		}
	}
	wg.Wait()

	stored, err := f.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*perUser, stored.ParticipantStates["carol"].Unread)

	_, total, _, err := f.chat.GetMessages(ctx, "carol", conv.ID, 1, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 2*perUser, total)

	// message events arrive in the same order the unread counters grew
	last := 0
	for _, e := range f.pub.ofType(event.TypeUnread) {
		var p event.UnreadPayload
		require.NoError(t, e.evt.Decode(&p))
		assert.Greater(t, p.Unread["carol"], last)
		last = p.Unread["carol"]
	}
}

// hookPublisher records like recordingPublisher and runs onMessage once,
// from inside the first message fan-out.
type hookPublisher struct {
	*recordingPublisher
	once      sync.Once
	onMessage func()
}

func (p *hookPublisher) SendToUsers(userIDs []string, evt event.Envelope) {
	p.recordingPublisher.SendToUsers(userIDs, evt)
	if evt.Type == event.TypeMessage {
		p.once.Do(p.onMessage)
	}
}

func TestMarkReadDuringSendKeepsUnreadInCommitOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv, err := f.chat.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	readDone := make(chan error, 1)
	pub := &hookPublisher{recordingPublisher: f.pub}
	pub.onMessage = func() {
		go func() {
			_, err := f.chat.MarkRead(ctx, "bob", conv.ID, "")
			readDone <- err
		}()
		// give the read every chance to overtake the rest of the fan-out
		select {
		case err := <-readDone:
			readDone <- err
		case <-time.After(200 * time.Millisecond):
		}
	}
	f.chat.publisher = pub

	_, err = f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, <-readDone)

	stored, err := f.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.ParticipantStates["bob"].Unread)

	last := -1
	for _, p := range f.pub.ofType(event.TypeUnread) {
		if !contains(p.users, "bob") {
			continue
		}
		var up event.UnreadPayload
		require.NoError(t, p.evt.Decode(&up))
		last = up.Unread["bob"]
	}
	assert.Equal(t, stored.ParticipantStates["bob"].Unread, last)
}

func TestMarkRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob", "carol")

	first, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)
	second, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "two"})
	require.NoError(t, err)
	f.pub.reset()

	updated, err := f.chat.MarkRead(ctx, "bob", conv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.ParticipantStates["bob"].Unread)
	assert.Equal(t, second.ID, updated.ParticipantStates["bob"].LastReadMessage)
	assert.Equal(t, 2, updated.ParticipantStates["carol"].Unread)

	reads := f.pub.ofType(event.TypeRead)
	require.Len(t, reads, 1)
	assert.ElementsMatch(t, []string{"alice", "carol"}, reads[0].users)
	var rp event.ReadPayload
	require.NoError(t, reads[0].evt.Decode(&rp))
	assert.Equal(t, "bob", rp.UserID)
	assert.Equal(t, second.ID, rp.MessageID)

	unread := f.pub.ofType(event.TypeUnread)
	require.Len(t, unread, 1)
	assert.Equal(t, []string{"bob"}, unread[0].users)

	// an older message never moves the pointer back
	updated, err = f.chat.MarkRead(ctx, "bob", conv.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, updated.ParticipantStates["bob"].LastReadMessage)

	_, err = f.chat.MarkRead(ctx, "bob", conv.ID, "missing")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.chat.MarkRead(ctx, "erin", conv.ID, "")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestTypingIsRelayedToOthersOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob", "carol")

	require.NoError(t, f.chat.HandleTyping(ctx, "bob", TypingInput{ConversationID: conv.ID, Typing: true}))

	typing := f.pub.ofType(event.TypeTyping)
	require.Len(t, typing, 1)
	assert.ElementsMatch(t, []string{"alice", "carol"}, typing[0].users)
	var p event.TypingPayload
	require.NoError(t, typing[0].evt.Decode(&p))
	assert.Equal(t, "bob", p.From)
	assert.True(t, p.Typing)

	err := f.chat.HandleTyping(ctx, "erin", TypingInput{ConversationID: conv.ID, Typing: true})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	// typing to someone without a conversation creates nothing
	err = f.chat.HandleTyping(ctx, "alice", TypingInput{To: "dave", Typing: true})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	_, err = f.convs.FindDirect(ctx, "alice", "dave")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSendWithUploads(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msg, err := f.chat.SendWithUploads(ctx, "alice", SendMessageInput{To: "bob"}, []service.UploadFile{
		textFile("notes.txt", "chapter one"),
		textFile("todo.txt", "read chapter two"),
	})
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "notes.txt", msg.Attachments[0].OriginalName)
	assert.NotEmpty(t, msg.Attachments[0].URL)
	assert.Equal(t, 2, f.files.Len())

	// same downstream events as the socket path
	assert.Len(t, f.pub.ofType(event.TypeMessage), 1)
	assert.Len(t, f.pub.ofType(event.TypeUnread), 1)

	stored, err := f.convs.GetByID(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ParticipantStates["bob"].Unread)
	assert.Equal(t, "notes.txt", stored.LastMessagePreview)
}

func TestSendWithUploadsFailsAtomically(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv, err := f.chat.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	broken := service.UploadFile{
		Name: "broken.bin",
		Size: 10,
		Open: func() (io.ReadCloser, error) { return nil, fmt.Errorf("disk gone") },
	}
	_, err = f.chat.SendWithUploads(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "see attached"}, []service.UploadFile{
		textFile("ok.txt", "fine"),
		broken,
	})
	require.Error(t, err)

	assert.Equal(t, 0, f.files.Len())
	_, total, _, err := f.chat.GetMessages(ctx, "alice", conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.pub.ofType(event.TypeMessage))
}

type unavailableGateway struct{}

func (unavailableGateway) Upload(context.Context, string, service.UploadFile) (*entity.Attachment, error) {
	return nil, fmt.Errorf("connection refused")
}

func (unavailableGateway) Delete(context.Context, *entity.Attachment) error { return nil }

func TestSendWithUploadsReportsUpstreamFailure(t *testing.T) {
	f := setup(t)
	f.chat.attachments = unavailableGateway{}

	_, err := f.chat.SendWithUploads(context.Background(), "alice", SendMessageInput{To: "bob"}, []service.UploadFile{textFile("a.txt", "a")})
	assert.True(t, errors.Is(err, errors.CodeUpstream))
}

func TestSendRateLimited(t *testing.T) {
	f := setup(t)
	f.chat.rateLimiter = ratelimit.NewRateLimiterWithPolicies(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: {Every: time.Hour, Burst: 1},
	})
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, "alice", SendMessageInput{To: "bob", Content: "one"})
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, "alice", SendMessageInput{To: "bob", Content: "two"})
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
}

func TestListConversationsOrderAndPresence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	withBob, err := f.chat.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	withCarol, err := f.chat.GetOrCreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)

	_, err = f.chat.SendMessage(ctx, "bob", SendMessageInput{ConversationID: withBob.ID, Content: "ping"})
	require.NoError(t, err)

	_, err = f.presence.Add(ctx, "bob", "conn-1")
	require.NoError(t, err)

	list, err := f.chat.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withBob.ID, list[0].ID)
	assert.Equal(t, withCarol.ID, list[1].ID)

	require.NotNil(t, list[0].Peer)
	assert.Equal(t, "bob", list[0].Peer.Username)
	assert.True(t, list[0].Peer.Online)
	assert.Equal(t, []string{"bob"}, list[0].Online)
	assert.False(t, list[1].Peer.Online)
	assert.Empty(t, list[1].Online)
}

func TestContacts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.group(t, "alice", "bob", "carol")
	_, err := f.chat.GetOrCreateDirect(ctx, "alice", "dave")
	require.NoError(t, err)
	_, err = f.chat.GetOrCreateDirect(ctx, "dave", "bob")
	require.NoError(t, err)

	contacts, err := f.chat.Contacts(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol", "dave"}, contacts)
}
