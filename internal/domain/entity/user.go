package entity

import "time"

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"

	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

type User struct {
	ID        string    `json:"id" firestore:"id"`
	Email     string    `json:"email,omitempty" firestore:"email"`
	Username  string    `json:"username" firestore:"username"`
	FullName  string    `json:"fullName,omitempty" firestore:"fullName,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty" firestore:"avatarURL,omitempty"`
	Role      string    `json:"role" firestore:"role"`
	Status    string    `json:"status" firestore:"status"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// IsActive treats an empty status as active; older user documents lack it.
func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == UserStatusActive
}

// UserSummary is the public profile attached to conversation listings.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Online    bool   `json:"online"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
}

// Identity is what the authentication layer vouches for on every request.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
