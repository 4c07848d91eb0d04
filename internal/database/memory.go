package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chathub/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// MemoryDB is an in-memory Database for tests and local development.
// It honors the same contracts as the Postgres implementation, in
// particular the single-row-per-(room,user) membership rule: all
// mutations happen under one lock, so the reactivate-or-create upsert
// is atomic here too.
type MemoryDB struct {
	mu sync.Mutex

	nextUserID       int
	nextRoomID       int
	nextMembershipID int
	nextInviteID     int
	nextMessageID    int

	users       map[int]*models.User
	rooms       map[int]*models.Room
	memberships map[[2]int]*models.Membership // keyed by (room_id, user_id)
	invites     map[int]*models.Invite
	messages    map[int][]*models.Message
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		nextUserID:       1,
		nextRoomID:       1,
		nextMembershipID: 1,
		nextInviteID:     1,
		nextMessageID:    1,
		users:            make(map[int]*models.User),
		rooms:            make(map[int]*models.Room),
		memberships:      make(map[[2]int]*models.Membership),
		invites:          make(map[int]*models.Invite),
		messages:         make(map[int][]*models.Message),
	}
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q not found", email)
}

func (db *MemoryDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Email == req.Email {
			return nil, fmt.Errorf("email already registered")
		}
	}

	user := &models.User{
		ID:           db.nextUserID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	db.nextUserID++
	db.users[user.ID] = user
	cp := *user
	return &cp, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	cp := *u
	return &cp, nil
}

func (db *MemoryDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, passwordHash string, ownerID int) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	room := &models.Room{
		ID:           db.nextRoomID,
		Name:         req.Name,
		Visibility:   req.Visibility,
		PasswordHash: passwordHash,
		OwnerID:      ownerID,
		AIEnabled:    req.AIEnabled,
		CreatedAt:    time.Now(),
	}
	db.nextRoomID++
	db.rooms[room.ID] = room
	cp := *room
	return &cp, nil
}

func (db *MemoryDB) GetRoomByID(ctx context.Context, id int) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	room, ok := db.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %d not found", id)
	}
	cp := *room
	return &cp, nil
}

func (db *MemoryDB) ListDiscoverableRooms(ctx context.Context, userID int) ([]*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var rooms []*models.Room
	for _, room := range db.rooms {
		m := db.memberships[[2]int{room.ID, userID}]
		if room.Visibility == models.VisibilityPublic || (m != nil && m.IsActive) {
			cp := *room
			rooms = append(rooms, &cp)
		}
	}
	return rooms, nil
}

func (db *MemoryDB) DeleteRoom(ctx context.Context, roomID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.rooms[roomID]; !ok {
		return fmt.Errorf("room %d not found", roomID)
	}
	for key, m := range db.memberships {
		if key[0] == roomID {
			m.IsActive = false
		}
	}
	for _, inv := range db.invites {
		if inv.RoomID == roomID && inv.Status == models.InviteStatusPending {
			inv.Status = models.InviteStatusDeclined
		}
	}
	delete(db.rooms, roomID)
	delete(db.messages, roomID)
	return nil
}

func (db *MemoryDB) GetMembership(ctx context.Context, roomID, userID int) (*models.Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.memberships[[2]int{roomID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (db *MemoryDB) ReactivateOrCreateMembership(ctx context.Context, roomID, userID int, role models.Role) (*models.Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := [2]int{roomID, userID}
	if m, ok := db.memberships[key]; ok {
		m.IsActive = true
		cp := *m
		return &cp, nil
	}

	m := &models.Membership{
		ID:       db.nextMembershipID,
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		IsActive: true,
		JoinedAt: time.Now(),
	}
	db.nextMembershipID++
	db.memberships[key] = m
	cp := *m
	return &cp, nil
}

func (db *MemoryDB) DeactivateMembership(ctx context.Context, roomID, userID int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.memberships[[2]int{roomID, userID}]
	if !ok || !m.IsActive {
		return false, nil
	}
	m.IsActive = false
	return true, nil
}

func (db *MemoryDB) GetRoomMembers(ctx context.Context, roomID int) ([]*models.Member, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var members []*models.Member
	for key, m := range db.memberships {
		if key[0] != roomID || !m.IsActive {
			continue
		}
		member := &models.Member{ID: m.UserID, Role: m.Role}
		if u, ok := db.users[m.UserID]; ok {
			member.Username = u.Username
		}
		members = append(members, member)
	}
	return members, nil
}

func (db *MemoryDB) CreateInvite(ctx context.Context, roomID, inviterID, inviteeID int) (*models.Invite, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	inv := &models.Invite{
		ID:        db.nextInviteID,
		RoomID:    roomID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    models.InviteStatusPending,
		CreatedAt: time.Now(),
	}
	db.nextInviteID++
	db.invites[inv.ID] = inv
	cp := *inv
	return &cp, nil
}

func (db *MemoryDB) GetInviteByID(ctx context.Context, id int) (*models.Invite, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	inv, ok := db.invites[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (db *MemoryDB) ResolveInvite(ctx context.Context, id int, status models.InviteStatus) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	inv, ok := db.invites[id]
	if !ok || inv.Status != models.InviteStatusPending {
		return false, nil
	}
	inv.Status = status
	return true, nil
}

func (db *MemoryDB) ListPendingInvites(ctx context.Context, inviteeID int) ([]*models.Invite, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var invites []*models.Invite
	for _, inv := range db.invites {
		if inv.InviteeID == inviteeID && inv.Status == models.InviteStatusPending {
			cp := *inv
			invites = append(invites, &cp)
		}
	}
	return invites, nil
}

func (db *MemoryDB) SaveMessage(ctx context.Context, roomID, senderID int, content string, senderType models.SenderType) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	msg := &models.Message{
		ID:         db.nextMessageID,
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    content,
		SenderType: senderType,
		CreatedAt:  time.Now(),
	}
	if u, ok := db.users[senderID]; ok {
		msg.Username = u.Username
	}
	db.nextMessageID++
	db.messages[roomID] = append(db.messages[roomID], msg)
	cp := *msg
	return &cp, nil
}

func (db *MemoryDB) LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	all := db.messages[roomID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}

	var messages []*models.Message
	for _, msg := range all[start:] {
		cp := *msg
		messages = append(messages, &cp)
	}
	return messages, nil
}

// MembershipCount reports how many membership rows exist for a room
// and user pair, active or not. Test hook for the uniqueness invariant.
func (db *MemoryDB) MembershipCount(roomID, userID int) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.memberships[[2]int{roomID, userID}]; ok {
		return 1
	}
	return 0
}
