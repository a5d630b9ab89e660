package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/domain/repository"
	"coursehub/internal/domain/service"
	"coursehub/internal/infrastructure/ratelimit"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
)

const (
	InviteAccept = "accept"
	InviteReject = "reject"

	maxSearchResults = 20
)

type GroupUseCase struct {
	convRepo    repository.ConversationRepository
	userRepo    repository.UserRepository
	courseRepo  repository.CourseRepository
	publisher   EventPublisher
	rewards     service.RewardNotifier
	rateLimiter *ratelimit.RateLimiter
	now         func() time.Time
}

func NewGroupUseCase(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	publisher EventPublisher,
	rewards service.RewardNotifier,
	rateLimiter *ratelimit.RateLimiter,
) *GroupUseCase {
	return &GroupUseCase{
		convRepo:    convRepo,
		userRepo:    userRepo,
		courseRepo:  courseRepo,
		publisher:   publisher,
		rewards:     rewards,
		rateLimiter: rateLimiter,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CreateGroupInput struct {
	Name   string
	Course string // course id or course code
}

type InviteResult struct {
	PendingInvites []string `json:"pendingInvites"`
	Invited        []string `json:"invited"`
	Skipped        []string `json:"skipped"`
}

func (uc *GroupUseCase) CreateGroup(ctx context.Context, actor entity.Identity, input CreateGroupInput) (*entity.Conversation, error) {
	if err := allow(uc.rateLimiter, actor.UserID, ratelimit.ActionCreateGroup); err != nil {
		return nil, err
	}
	if !entity.ValidGroupName(input.Name) {
		return nil, errors.BadRequest("Group name must be between 1 and 100 characters", nil)
	}

	course, err := uc.resolveCourse(ctx, input.Course)
	if err != nil {
		return nil, err
	}
	if !course.IsMember(actor.UserID) && !actor.IsAdmin() {
		logger.Warn("CreateGroup Error: user %s is not enrolled in course %s", actor.UserID, course.ID)
		return nil, errors.Forbidden("You must be enrolled in this course to create a group", nil)
	}

	conv := entity.NewGroupConversation(uuid.New().String(), actor.UserID, input.Name, course.ID, uc.now())
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		logger.Error("CreateGroup Error: %v", err)
		return nil, err
	}

	uc.publisher.SendToUsers([]string{actor.UserID}, event.New(event.TypeGroupUpdated, event.GroupPayload{
		Conversation: conv,
		Reason:       event.ReasonCreated,
		UserID:       actor.UserID,
	}))
	notifyReward(uc.rewards, entity.RewardEvent{
		Type:           entity.RewardGroupCreated,
		UserID:         actor.UserID,
		ConversationID: conv.ID,
		OccurredAt:     conv.CreatedAt,
	})
	return conv, nil
}

func (uc *GroupUseCase) resolveCourse(ctx context.Context, ref string) (*entity.Course, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.BadRequest("Course is required", nil)
	}

	course, err := uc.courseRepo.GetByID(ctx, ref)
	if err == nil {
		return course, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	return uc.courseRepo.GetByCode(ctx, ref)
}

func (uc *GroupUseCase) ListGroups(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	convs, err := uc.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups := make([]*entity.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.IsGroup {
			groups = append(groups, c)
		}
	}
	return groups, nil
}

func (uc *GroupUseCase) ListPendingInvites(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	return uc.convRepo.ListByPendingInvite(ctx, userID)
}

func (uc *GroupUseCase) getGroup(ctx context.Context, conversationID string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, errors.BadRequest("Conversation is not a group", nil)
	}
	return conv, nil
}

// Invite adds eligible candidates to the group's pending invites. Existing
// participants, pending invitees, the inviter, unknown or suspended accounts
// and users outside the course are skipped.
func (uc *GroupUseCase) Invite(ctx context.Context, conversationID, inviterID string, candidateIDs []string) (*InviteResult, error) {
	if err := allow(uc.rateLimiter, inviterID, ratelimit.ActionInvite); err != nil {
		return nil, err
	}
	candidateIDs = dedupe(candidateIDs)
	if len(candidateIDs) == 0 {
		return nil, errors.BadRequest("At least one user is required", nil)
	}

	conv, err := uc.getGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Creator != inviterID {
		return nil, errors.Forbidden("Only the group creator can invite members", nil)
	}
	course, err := uc.courseRepo.GetByID(ctx, conv.Course)
	if err != nil {
		logger.Error("Invite Error: course %s of group %s: %v", conv.Course, conv.ID, err)
		return nil, err
	}

	users, err := uc.userRepo.GetByIDs(ctx, candidateIDs)
	if err != nil {
		logger.Error("Invite Error: resolving candidates for group %s: %v", conv.ID, err)
		return nil, err
	}
	active := make(map[string]bool, len(users))
	for _, u := range users {
		active[u.ID] = u.IsActive()
	}

	var result InviteResult
	updated, err := uc.convRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		result = InviteResult{Invited: []string{}, Skipped: []string{}}
		for _, id := range candidateIDs {
			if id == inviterID || !active[id] || !course.IsMember(id) || !c.AddPending(id) {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			result.Invited = append(result.Invited, id)
		}
		if len(result.Invited) > 0 {
			c.UpdatedAt = uc.now()
		}
		return nil
	})
	if err != nil {
		logger.Error("Invite Error: group %s: %v", conversationID, err)
		return nil, err
	}
	result.PendingInvites = updated.PendingInvites

	if len(result.Invited) > 0 {
		uc.publisher.SendToUsers(result.Invited, event.New(event.TypeGroupInvited, event.GroupPayload{
			Conversation: updated,
			Reason:       event.ReasonInvited,
			UserID:       inviterID,
		}))
		uc.publisher.SendToUsers(updated.Participants, event.New(event.TypeGroupUpdated, event.GroupPayload{
			Conversation: updated,
			Reason:       event.ReasonInvited,
			UserID:       inviterID,
		}))
	}
	return &result, nil
}

// Respond resolves a pending invitation. Accepting again once already a
// participant returns the group unchanged.
func (uc *GroupUseCase) Respond(ctx context.Context, conversationID, userID, action string) (*entity.Conversation, error) {
	if action != InviteAccept && action != InviteReject {
		return nil, errors.BadRequest("Action must be accept or reject", nil)
	}

	already := false
	updated, err := uc.convRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		already = false
		if !c.IsGroup {
			return errors.BadRequest("Conversation is not a group", nil)
		}
		if !c.IsPending(userID) {
			if action == InviteAccept && c.HasParticipant(userID) {
				already = true
				return nil
			}
			return errors.Conflict("No pending invitation for this group")
		}
		if action == InviteAccept {
			c.Accept(userID, uc.now())
		} else {
			c.Reject(userID, uc.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return updated, nil
	}

	reason := event.ReasonRejected
	if action == InviteAccept {
		reason = event.ReasonAccepted
		notifyReward(uc.rewards, entity.RewardEvent{
			Type:           entity.RewardInviteAccepted,
			UserID:         userID,
			ConversationID: updated.ID,
			OccurredAt:     updated.UpdatedAt,
		})
	}
	uc.publisher.SendToUsers(dedupe(append(append([]string{}, updated.Participants...), userID)), event.New(event.TypeGroupUpdated, event.GroupPayload{
		Conversation: updated,
		Reason:       reason,
		UserID:       userID,
	}))
	return updated, nil
}

func (uc *GroupUseCase) Leave(ctx context.Context, conversationID, userID string) error {
	updated, err := uc.convRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if !c.IsGroup {
			return errors.BadRequest("Conversation is not a group", nil)
		}
		if !c.HasParticipant(userID) {
			return errors.Forbidden("User is not a participant in this group", nil)
		}
		if c.Creator == userID {
			return errors.Forbidden("The group creator cannot leave; delete the group instead", nil)
		}
		c.RemoveParticipant(userID, uc.now())
		return nil
	})
	if err != nil {
		return err
	}

	uc.publisher.SendToUsers(append(append([]string{}, updated.Participants...), userID), event.New(event.TypeGroupUpdated, event.GroupPayload{
		Conversation: updated,
		Reason:       event.ReasonLeft,
		UserID:       userID,
	}))
	return nil
}

// Delete removes the group and tells every participant and invitee. The
// audience is taken from the state that was actually deleted.
func (uc *GroupUseCase) Delete(ctx context.Context, conversationID, requesterID string) error {
	conv, err := uc.convRepo.Delete(ctx, conversationID, func(c *entity.Conversation) error {
		if !c.IsGroup {
			return errors.BadRequest("Conversation is not a group", nil)
		}
		if c.Creator != requesterID {
			return errors.Forbidden("Only the group creator can delete the group", nil)
		}
		return nil
	})
	if conv == nil {
		if !errors.Is(err, errors.CodeForbidden) && !errors.Is(err, errors.CodeNotFound) {
			logger.Error("Delete Error: group %s: %v", conversationID, err)
		}
		return err
	}
	if err != nil {
		logger.Error("Delete Error: group %s removed but its messages were not: %v", conversationID, err)
	}
	logger.Info("Group %s deleted by %s", conversationID, requesterID)

	uc.publisher.SendToUsers(conv.Audience(), event.New(event.TypeGroupDeleted, event.GroupDeletedPayload{
		ConversationID: conv.ID,
		Name:           conv.Name,
	}))
	return nil
}

// SearchEligibleUsers lists course members who could still be invited,
// filtered by a case-insensitive match on name or email.
func (uc *GroupUseCase) SearchEligibleUsers(ctx context.Context, conversationID, requesterID, query string) ([]entity.UserSummary, error) {
	conv, err := uc.getGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, errors.Forbidden("User is not a participant in this group", nil)
	}
	course, err := uc.courseRepo.GetByID(ctx, conv.Course)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, id := range course.Members() {
		if id == requesterID || conv.HasParticipant(id) || conv.IsPending(id) {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return []entity.UserSummary{}, nil
	}

	users, err := uc.userRepo.GetByIDs(ctx, candidates)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]entity.UserSummary, 0, len(users))
	for _, u := range users {
		if !u.IsActive() {
			continue
		}
		if q != "" && !matches(u, q) {
			continue
		}
		out = append(out, u.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > maxSearchResults {
		out = out[:maxSearchResults]
	}
	return out, nil
}

func matches(u *entity.User, q string) bool {
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.FullName), q) ||
		strings.Contains(strings.ToLower(u.Email), q)
}
