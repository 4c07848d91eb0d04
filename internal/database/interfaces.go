package database

import (
	"context"

	"chathub/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest, passwordHash string, ownerID int) (*models.Room, error)
	GetRoomByID(ctx context.Context, id int) (*models.Room, error)
	// ListDiscoverableRooms returns the union of all public rooms and
	// the rooms where the user holds an active membership. Hidden rooms
	// reach the result only through the membership branch.
	ListDiscoverableRooms(ctx context.Context, userID int) ([]*models.Room, error)
	DeleteRoom(ctx context.Context, roomID int) error
}

type MembershipRepository interface {
	// GetMembership returns the row for (room_id, user_id) whether or
	// not it is active, or nil if none has ever existed.
	GetMembership(ctx context.Context, roomID, userID int) (*models.Membership, error)
	// ReactivateOrCreateMembership is a single atomic upsert keyed on
	// (room_id, user_id): it inserts a fresh row or flips the existing
	// row back to active, never producing a duplicate under concurrent
	// rejoins. An existing row keeps its role.
	ReactivateOrCreateMembership(ctx context.Context, roomID, userID int, role models.Role) (*models.Membership, error)
	// DeactivateMembership flips is_active to false and reports whether
	// an active row was actually updated.
	DeactivateMembership(ctx context.Context, roomID, userID int) (bool, error)
	GetRoomMembers(ctx context.Context, roomID int) ([]*models.Member, error)
}

type InviteRepository interface {
	CreateInvite(ctx context.Context, roomID, inviterID, inviteeID int) (*models.Invite, error)
	GetInviteByID(ctx context.Context, id int) (*models.Invite, error)
	// ResolveInvite transitions a PENDING invite to a terminal status
	// and reports whether the transition happened; once accepted or
	// declined an invite never changes again.
	ResolveInvite(ctx context.Context, id int, status models.InviteStatus) (bool, error)
	ListPendingInvites(ctx context.Context, inviteeID int) ([]*models.Invite, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, roomID, senderID int, content string, senderType models.SenderType) (*models.Message, error)
	// LoadRecentMessages returns the last limit messages, oldest first.
	LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	RoomRepository
	MembershipRepository
	InviteRepository
	MessageRepository
	Close() error
}
