package models

import "time"

type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityHidden Visibility = "hidden"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
)

type SenderType string

const (
	SenderTypeUser   SenderType = "user"
	SenderTypeAI     SenderType = "ai"
	SenderTypeSystem SenderType = "system"
)

type Room struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Visibility   Visibility `json:"visibility"`
	PasswordHash string     `json:"-"`
	OwnerID      int        `json:"owner_id"`
	AIEnabled    bool       `json:"ai_enabled"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasPassword reports whether a direct (non-invited) join requires a
// password. Invited users bypass this gate entirely.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// Membership links a user to a room. There is at most one row per
// (room_id, user_id) pair, ever: leaving flips is_active to false and
// rejoining reactivates the same row.
type Membership struct {
	ID       int       `json:"id"`
	RoomID   int       `json:"room_id"`
	UserID   int       `json:"user_id"`
	Role     Role      `json:"role"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

type Invite struct {
	ID        int          `json:"id"`
	RoomID    int          `json:"room_id"`
	InviterID int          `json:"inviter_id"`
	InviteeID int          `json:"invitee_id"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type Message struct {
	ID         int        `json:"id"`
	RoomID     int        `json:"room_id"`
	SenderID   int        `json:"sender_id"`
	Content    string     `json:"content"`
	SenderType SenderType `json:"sender_type"`
	Username   string     `json:"username,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type CreateRoomRequest struct {
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	Password   string     `json:"password,omitempty"`
	AIEnabled  bool       `json:"ai_enabled"`
}

type JoinRoomRequest struct {
	Password *string `json:"password,omitempty"`
}

type InviteRequest struct {
	Email string `json:"email"`
}

type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
