package usecase

import (
	"context"
	"sync"
	"time"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/domain/service"
	"coursehub/internal/infrastructure/ratelimit"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
)

// EventPublisher delivers an event to every live connection of each user.
// Delivery is fire-and-forget.
type EventPublisher interface {
	SendToUsers(userIDs []string, evt event.Envelope)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func allow(rl *ratelimit.RateLimiter, userID, action string) error {
	if rl == nil {
		return nil
	}
	if ok, wait := rl.Allow(userID, action); !ok {
		logger.Warn("Rate limited: user %s action %s must wait %v", userID, action, wait)
		return errors.TooManyRequests("Too many requests, please slow down", wait)
	}
	return nil
}

// notifyReward hands the event to the ledger without waiting for it.
func notifyReward(rewards service.RewardNotifier, evt entity.RewardEvent) {
	if rewards == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rewards.Notify(ctx, evt); err != nil {
			logger.Warn("Reward notification %s for %s failed: %v", evt.Type, evt.UserID, err)
		}
	}()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
