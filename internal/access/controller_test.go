package access

import (
	"context"
	"testing"

	"chathub/internal/database"
	"chathub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *database.MemoryDB) {
	t.Helper()
	db := database.NewMemoryDB()
	return NewController(db), db
}

func registerUser(t *testing.T, db *database.MemoryDB, username string) *models.User {
	t.Helper()
	user, err := db.CreateUser(context.Background(), &models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func createRoom(t *testing.T, c *Controller, owner *models.User, name string, visibility models.Visibility, password string) *models.Room {
	t.Helper()
	room, err := c.CreateRoom(context.Background(), &models.CreateRoomRequest{
		Name:       name,
		Visibility: visibility,
		Password:   password,
	}, owner.ID)
	require.NoError(t, err)
	return room
}

func strptr(s string) *string { return &s }

func TestJoinPublicOpenRoom(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	b := registerUser(t, db, "userb")
	room := createRoom(t, c, owner, "Team Chat", models.VisibilityPublic, "")

	m, err := c.JoinPublic(context.Background(), room.ID, b.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)
	assert.True(t, m.IsActive)
}

func TestJoinPublicIsIdempotent(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	b := registerUser(t, db, "userb")
	room := createRoom(t, c, owner, "general", models.VisibilityPublic, "")

	first, err := c.JoinPublic(context.Background(), room.ID, b.ID, nil)
	require.NoError(t, err)
	second, err := c.JoinPublic(context.Background(), room.ID, b.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, db.MembershipCount(room.ID, b.ID))
}

func TestJoinPublicWrongThenRightPassword(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userc")
	room := createRoom(t, c, owner, "Secret", models.VisibilityPublic, "pw123")

	_, err := c.JoinPublic(context.Background(), room.ID, u.ID, strptr("wrong"))
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPassword, ae.Code)
	assert.Equal(t, 0, db.MembershipCount(room.ID, u.ID))

	m, err := c.JoinPublic(context.Background(), room.ID, u.ID, strptr("pw123"))
	require.NoError(t, err)
	assert.True(t, m.IsActive)
}

func TestJoinPublicEmptyPasswordIsNotNoPassword(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userc")
	room := createRoom(t, c, owner, "Secret", models.VisibilityPublic, "secret")

	_, err := c.JoinPublic(context.Background(), room.ID, u.ID, strptr(""))
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPassword, ae.Code)

	_, err = c.JoinPublic(context.Background(), room.ID, u.ID, nil)
	ae, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPassword, ae.Code)
}

func TestJoinMissingRoomLooksLikeWrongPassword(t *testing.T) {
	c, db := newTestController(t)
	u := registerUser(t, db, "userb")

	// A join against an id that was never created must be refused the
	// same way a wrong password is, so the join path cannot be used to
	// discover which rooms exist.
	_, err := c.JoinPublic(context.Background(), 999, u.ID, strptr("anything"))
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPassword, ae.Code)

	_, err = c.JoinPublic(context.Background(), 999, u.ID, nil)
	ae, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPassword, ae.Code)
}

func TestJoinHiddenRoomForbidden(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userd")
	room := createRoom(t, c, owner, "VIP", models.VisibilityHidden, "")

	_, err := c.JoinPublic(context.Background(), room.ID, u.ID, nil)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeForbidden, ae.Code)
}

func TestAcceptInviteBypassesPassword(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	d := registerUser(t, db, "userd")
	room := createRoom(t, c, owner, "VIP", models.VisibilityHidden, "topsecret")

	inv, err := c.Invite(context.Background(), room.ID, owner.ID, d.ID)
	require.NoError(t, err)

	// No password anywhere near this call.
	m, err := c.AcceptInvite(context.Background(), inv.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.Equal(t, models.RoleMember, m.Role)

	got, err := db.GetInviteByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusAccepted, got.Status)
}

func TestAcceptInviteWrongInvitee(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	d := registerUser(t, db, "userd")
	e := registerUser(t, db, "usere")
	room := createRoom(t, c, owner, "VIP", models.VisibilityHidden, "")

	inv, err := c.Invite(context.Background(), room.ID, owner.ID, d.ID)
	require.NoError(t, err)

	_, err = c.AcceptInvite(context.Background(), inv.ID, e.ID)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeForbidden, ae.Code)
}

func TestDeclineInviteIsTerminal(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	d := registerUser(t, db, "userd")
	room := createRoom(t, c, owner, "VIP", models.VisibilityHidden, "")

	inv, err := c.Invite(context.Background(), room.ID, owner.ID, d.ID)
	require.NoError(t, err)
	require.NoError(t, c.DeclineInvite(context.Background(), inv.ID, d.ID))

	// Declining never touches membership, and the invite cannot be
	// accepted afterwards.
	assert.Equal(t, 0, db.MembershipCount(room.ID, d.ID))
	_, err = c.AcceptInvite(context.Background(), inv.ID, d.ID)
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestLeaveThenRejoinReactivatesSameRow(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userb")
	room := createRoom(t, c, owner, "Secret", models.VisibilityPublic, "pw123")

	first, err := c.JoinPublic(context.Background(), room.ID, u.ID, strptr("pw123"))
	require.NoError(t, err)
	require.NoError(t, c.Leave(context.Background(), room.ID, u.ID))

	m, err := db.GetMembership(context.Background(), room.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, m.IsActive, "leave deactivates, never deletes")

	second, err := c.JoinPublic(context.Background(), room.ID, u.ID, strptr("pw123"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "rejoin reactivates the original row")
	assert.True(t, second.IsActive)
	assert.Equal(t, 1, db.MembershipCount(room.ID, u.ID))
}

func TestOwnerCannotLeave(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	room := createRoom(t, c, owner, "mine", models.VisibilityPublic, "")

	err := c.Leave(context.Background(), room.ID, owner.ID)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeForbidden, ae.Code)
}

func TestDeleteRoomOwnerOnly(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userb")
	room := createRoom(t, c, owner, "doomed", models.VisibilityPublic, "")

	_, err := c.JoinPublic(context.Background(), room.ID, u.ID, nil)
	require.NoError(t, err)

	err = c.DeleteRoom(context.Background(), room.ID, u.ID)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeForbidden, ae.Code)

	require.NoError(t, c.DeleteRoom(context.Background(), room.ID, owner.ID))

	// Memberships are deactivated by the cascade.
	m, err := db.GetMembership(context.Background(), room.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
}

func TestHiddenRoomsInvisibleToNonMembers(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	member := registerUser(t, db, "member")
	outsider := registerUser(t, db, "outsider")

	createRoom(t, c, owner, "lobby", models.VisibilityPublic, "")
	hidden := createRoom(t, c, owner, "VIP", models.VisibilityHidden, "")

	inv, err := c.Invite(context.Background(), hidden.ID, owner.ID, member.ID)
	require.NoError(t, err)
	_, err = c.AcceptInvite(context.Background(), inv.ID, member.ID)
	require.NoError(t, err)

	outsiderRooms, err := c.ListDiscoverable(context.Background(), outsider.ID)
	require.NoError(t, err)
	for _, r := range outsiderRooms {
		assert.NotEqual(t, hidden.ID, r.ID, "hidden room leaked to a non-member")
	}
	assert.Len(t, outsiderRooms, 1)

	memberRooms, err := c.ListDiscoverable(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Len(t, memberRooms, 2, "members see their hidden rooms")
}

func TestCheckAccessRequiresActiveMembership(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	u := registerUser(t, db, "userb")
	room := createRoom(t, c, owner, "general", models.VisibilityPublic, "")

	_, err := c.CheckAccess(context.Background(), room.ID, u.ID)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotMember, ae.Code)

	_, err = c.JoinPublic(context.Background(), room.ID, u.ID, nil)
	require.NoError(t, err)
	_, err = c.CheckAccess(context.Background(), room.ID, u.ID)
	require.NoError(t, err)

	require.NoError(t, c.Leave(context.Background(), room.ID, u.ID))
	_, err = c.CheckAccess(context.Background(), room.ID, u.ID)
	ae, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotMember, ae.Code)
}

func TestInviteRequiresActiveMembership(t *testing.T) {
	c, db := newTestController(t)
	owner := registerUser(t, db, "owner")
	stranger := registerUser(t, db, "stranger")
	target := registerUser(t, db, "target")
	room := createRoom(t, c, owner, "general", models.VisibilityPublic, "")

	_, err := c.Invite(context.Background(), room.ID, stranger.ID, target.ID)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotMember, ae.Code)
}
