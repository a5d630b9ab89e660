package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"coursehub/internal/adapter/repository/memory"
	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/infrastructure/presence"
	"coursehub/internal/infrastructure/storage"
)

type published struct {
	users []string
	evt   event.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) SendToUsers(userIDs []string, evt event.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{users: append([]string(nil), userIDs...), evt: evt})
}

func (p *recordingPublisher) ofType(typ string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.evt.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type recordingRewards struct {
	mu     sync.Mutex
	events []entity.RewardEvent
}

func (r *recordingRewards) Notify(_ context.Context, evt entity.RewardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingRewards) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	chat     *ChatUseCase
	groups   *GroupUseCase
	convs    *memory.ConversationRepository
	msgs     *memory.MessageRepository
	users    *memory.UserRepository
	courses  *memory.CourseRepository
	pub      *recordingPublisher
	files    *storage.MemoryGateway
	rewards  *recordingRewards
	presence *presence.MemoryRegistry
}

// setup builds use-cases over memory stores. Course c1 (code CS101) is owned
// by prof; alice, bob, carol and dave are enrolled; erin is not; sam is
// suspended.
func setup(t *testing.T) *fixture {
	t.Helper()

	msgs := memory.NewMessageRepository()
	f := &fixture{
		msgs:     msgs,
		convs:    memory.NewConversationRepository(msgs),
		pub:      &recordingPublisher{},
		files:    storage.NewMemoryGateway("http://files.test", 1<<20),
		rewards:  &recordingRewards{},
		presence: presence.NewMemoryRegistry(),
		users: memory.NewUserRepository(
			&entity.User{ID: "prof", Username: "prof", FullName: "Dr. Prof", Role: entity.RoleInstructor},
			&entity.User{ID: "alice", Username: "alice", FullName: "Alice Moreau", Email: "alice@uni.test"},
			&entity.User{ID: "bob", Username: "bob", FullName: "Bob Tran"},
			&entity.User{ID: "carol", Username: "carol", FullName: "Carol Diaz"},
			&entity.User{ID: "dave", Username: "dave", FullName: "Dave Kim"},
			&entity.User{ID: "erin", Username: "erin", FullName: "Erin Walsh"},
			&entity.User{ID: "sam", Username: "sam", Status: entity.UserStatusSuspended},
			&entity.User{ID: "root", Username: "root", Role: entity.RoleAdmin},
		),
		courses: memory.NewCourseRepository(&entity.Course{
			ID:       "c1",
			Code:     "CS101",
			Title:    "Intro to CS",
			OwnerID:  "prof",
			Students: []string{"alice", "bob", "carol", "dave", "sam"},
		}),
	}

	f.chat = NewChatUseCase(f.convs, f.msgs, f.users, f.pub, f.presence, f.files, f.rewards, nil, 10)
	f.groups = NewGroupUseCase(f.convs, f.users, f.courses, f.pub, f.rewards, nil)
	return f
}

// group creates a CS101 group owned by creator with members already joined.
func (f *fixture) group(t *testing.T, creator string, members ...string) *entity.Conversation {
	t.Helper()
	ctx := context.Background()

	conv, err := f.groups.CreateGroup(ctx, entity.Identity{UserID: creator}, CreateGroupInput{Name: "Study group", Course: "c1"})
	require.NoError(t, err)
	if len(members) > 0 {
		_, err = f.groups.Invite(ctx, conv.ID, creator, members)
		require.NoError(t, err)
		for _, m := range members {
			_, err = f.groups.Respond(ctx, conv.ID, m, InviteAccept)
			require.NoError(t, err)
		}
	}

	conv, err = f.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	f.pub.reset()
	return conv
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
