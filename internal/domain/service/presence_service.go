package service

import "context"

// PresenceRegistry tracks live connections per user.
type PresenceRegistry interface {
	// Add reports whether connID is the user's first live connection.
	Add(ctx context.Context, userID, connID string) (bool, error)
	// Remove reports whether the user has no live connections left.
	Remove(ctx context.Context, userID, connID string) (bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}
