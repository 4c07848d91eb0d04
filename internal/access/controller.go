package access

import (
	"context"
	"fmt"

	"chathub/internal/database"
	"chathub/internal/models"
	"chathub/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

// Controller is the single authorization gate for every room-scoped
// operation. Nothing persists or broadcasts into a room without going
// through it first.
type Controller struct {
	db database.Database
}

func NewController(db database.Database) *Controller {
	return &Controller{db: db}
}

// CheckAccess returns the caller's membership only if it is active.
func (c *Controller) CheckAccess(ctx context.Context, roomID, userID int) (*models.Membership, error) {
	m, err := c.db.GetMembership(ctx, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m == nil || !m.IsActive {
		return nil, denied(CodeNotMember, "not a member of this room")
	}
	return m, nil
}

// JoinPublic admits a user to a room through the direct (non-invited)
// path: hidden rooms are refused outright, password rooms require an
// exact match, and the membership row is reactivated or created in one
// atomic step so concurrent rejoins cannot duplicate it. Joining a room
// the caller is already an active member of is a no-op that returns the
// existing membership.
func (c *Controller) JoinPublic(ctx context.Context, roomID, userID int, password *string) (*models.Membership, error) {
	room, err := c.db.GetRoomByID(ctx, roomID)
	if err != nil {
		// Same denial as a wrong password; the join path never reveals
		// which room ids exist.
		return nil, denied(CodeInvalidPassword, "invalid password")
	}

	if room.Visibility == models.VisibilityHidden {
		return nil, denied(CodeForbidden, "room is invite-only")
	}

	if room.HasPassword() {
		if err := checkRoomPassword(room.PasswordHash, password); err != nil {
			return nil, err
		}
	}

	m, err := c.db.ReactivateOrCreateMembership(ctx, roomID, userID, models.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	logger.Info("User %d joined room %d", userID, roomID)
	return m, nil
}

// checkRoomPassword compares a candidate against the room's bcrypt
// hash. An absent or empty candidate means "no password provided" and
// fails the same way a wrong one does.
func checkRoomPassword(hash string, password *string) error {
	if password == nil || *password == "" {
		return denied(CodeInvalidPassword, "invalid password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(*password)); err != nil {
		return denied(CodeInvalidPassword, "invalid password")
	}
	return nil
}

// AcceptInvite turns a pending invite into an active membership. The
// invite itself is the trust credential: no password check happens here
// no matter what the room requires. The invite is terminal afterwards.
func (c *Controller) AcceptInvite(ctx context.Context, inviteID, userID int) (*models.Membership, error) {
	inv, err := c.loadPendingInvite(ctx, inviteID, userID)
	if err != nil {
		return nil, err
	}

	m, err := c.db.ReactivateOrCreateMembership(ctx, inv.RoomID, userID, models.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	resolved, err := c.db.ResolveInvite(ctx, inviteID, models.InviteStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve invite: %w", err)
	}
	if !resolved {
		// Raced with another resolution; the membership upsert is
		// idempotent so the caller still ends up a member.
		logger.Debug("Invite %d was already resolved", inviteID)
	}

	logger.Info("User %d accepted invite %d to room %d", userID, inviteID, inv.RoomID)
	return m, nil
}

// DeclineInvite marks the invite declined; no membership is touched.
func (c *Controller) DeclineInvite(ctx context.Context, inviteID, userID int) error {
	if _, err := c.loadPendingInvite(ctx, inviteID, userID); err != nil {
		return err
	}

	resolved, err := c.db.ResolveInvite(ctx, inviteID, models.InviteStatusDeclined)
	if err != nil {
		return fmt.Errorf("failed to resolve invite: %w", err)
	}
	if !resolved {
		return ErrInviteNotFound
	}
	return nil
}

func (c *Controller) loadPendingInvite(ctx context.Context, inviteID, userID int) (*models.Invite, error) {
	inv, err := c.db.GetInviteByID(ctx, inviteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	if inv == nil || inv.Status != models.InviteStatusPending {
		return nil, ErrInviteNotFound
	}
	if inv.InviteeID != userID {
		return nil, denied(CodeForbidden, "invite addressed to another user")
	}
	return inv, nil
}

// Invite creates a pending invite from an active member to another
// user. Accepting it will bypass the room's password gate.
func (c *Controller) Invite(ctx context.Context, roomID, inviterID, inviteeID int) (*models.Invite, error) {
	if _, err := c.db.GetRoomByID(ctx, roomID); err != nil {
		return nil, ErrRoomNotFound
	}

	if _, err := c.CheckAccess(ctx, roomID, inviterID); err != nil {
		return nil, err
	}

	inv, err := c.db.CreateInvite(ctx, roomID, inviterID, inviteeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	logger.Info("User %d invited user %d to room %d", inviterID, inviteeID, roomID)
	return inv, nil
}

// Leave deactivates the caller's membership. The row survives so the
// same user can rejoin later and reactivate it. Owners cannot leave
// their own room; they can only delete it.
func (c *Controller) Leave(ctx context.Context, roomID, userID int) error {
	m, err := c.CheckAccess(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if m.Role == models.RoleOwner {
		return denied(CodeForbidden, "owners cannot leave their room")
	}

	updated, err := c.db.DeactivateMembership(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	if !updated {
		return denied(CodeNotMember, "not a member of this room")
	}

	logger.Info("User %d left room %d", userID, roomID)
	return nil
}

// DeleteRoom removes the room and deactivates every membership in it.
// Only the owner may call it.
func (c *Controller) DeleteRoom(ctx context.Context, roomID, userID int) error {
	room, err := c.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return ErrRoomNotFound
	}
	if room.OwnerID != userID {
		return denied(CodeForbidden, "only the owner may delete the room")
	}

	if err := c.db.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	logger.Info("User %d deleted room %d", userID, roomID)
	return nil
}

// CreateRoom creates a room owned by the caller, hashing the optional
// join password, and seeds the owner's membership.
func (c *Controller) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID int) (*models.Room, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}

	passwordHash := ""
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash room password: %w", err)
		}
		passwordHash = string(hash)
	}

	room, err := c.db.CreateRoom(ctx, req, passwordHash, ownerID)
	if err != nil {
		return nil, err
	}

	if _, err := c.db.ReactivateOrCreateMembership(ctx, room.ID, ownerID, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	return room, nil
}

// ListDiscoverable returns every room the user may see: all public
// rooms plus the hidden rooms they hold an active membership in.
func (c *Controller) ListDiscoverable(ctx context.Context, userID int) ([]*models.Room, error) {
	return c.db.ListDiscoverableRooms(ctx, userID)
}

func (c *Controller) PendingInvites(ctx context.Context, userID int) ([]*models.Invite, error) {
	return c.db.ListPendingInvites(ctx, userID)
}

func (c *Controller) RoomMembers(ctx context.Context, roomID, userID int) ([]*models.Member, error) {
	if _, err := c.CheckAccess(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return c.db.GetRoomMembers(ctx, roomID)
}
