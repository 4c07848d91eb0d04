package database

import (
	"context"
	"errors"
	"fmt"

	"chathub/internal/models"
	"chathub/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, passwordHash string, ownerID int) (*models.Room, error) {
	query := `
		INSERT INTO rooms (name, visibility, password_hash, owner_id, ai_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, name, visibility, password_hash, owner_id, ai_enabled, created_at`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, req.Name, req.Visibility, passwordHash, ownerID, req.AIEnabled).Scan(
		&room.ID, &room.Name, &room.Visibility, &room.PasswordHash, &room.OwnerID, &room.AIEnabled, &room.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

func (db *PostgresDB) GetRoomByID(ctx context.Context, id int) (*models.Room, error) {
	query := `SELECT id, name, visibility, password_hash, owner_id, ai_enabled, created_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.Visibility, &room.PasswordHash, &room.OwnerID, &room.AIEnabled, &room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) ListDiscoverableRooms(ctx context.Context, userID int) ([]*models.Room, error) {
	query := `
		SELECT DISTINCT r.id, r.name, r.visibility, r.password_hash, r.owner_id, r.ai_enabled, r.created_at
		FROM rooms r
		LEFT JOIN memberships m ON r.id = m.room_id AND m.user_id = $1 AND m.is_active
		WHERE r.visibility = 'public' OR m.user_id IS NOT NULL
		ORDER BY r.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.Visibility, &room.PasswordHash, &room.OwnerID, &room.AIEnabled, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) DeleteRoom(ctx context.Context, roomID int) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Memberships are deactivated, not deleted, so the join history
	// survives the room.
	if _, err := tx.Exec(ctx, "UPDATE memberships SET is_active = false WHERE room_id = $1", roomID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "UPDATE invites SET status = 'declined' WHERE room_id = $1 AND status = 'pending'", roomID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Membership Repository Implementation
func (db *PostgresDB) GetMembership(ctx context.Context, roomID, userID int) (*models.Membership, error) {
	query := `
		SELECT id, room_id, user_id, role, is_active, joined_at
		FROM memberships WHERE room_id = $1 AND user_id = $2`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, roomID, userID).Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.IsActive, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (db *PostgresDB) ReactivateOrCreateMembership(ctx context.Context, roomID, userID int, role models.Role) (*models.Membership, error) {
	// One statement so two racing rejoins for the same (room_id,
	// user_id) can never insert twice; the unique constraint in the
	// schema backs this up. An existing row keeps its original role.
	query := `
		INSERT INTO memberships (room_id, user_id, role, is_active, joined_at)
		VALUES ($1, $2, $3, true, NOW())
		ON CONFLICT (room_id, user_id) DO UPDATE SET is_active = true
		RETURNING id, room_id, user_id, role, is_active, joined_at`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, roomID, userID, role).Scan(
		&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.IsActive, &m.JoinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert membership: %w", err)
	}

	return m, nil
}

func (db *PostgresDB) DeactivateMembership(ctx context.Context, roomID, userID int) (bool, error) {
	query := `UPDATE memberships SET is_active = false WHERE room_id = $1 AND user_id = $2 AND is_active`

	tag, err := db.pool.Exec(ctx, query, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *PostgresDB) GetRoomMembers(ctx context.Context, roomID int) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.username, m.role
		FROM memberships m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1 AND m.is_active
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.Username, &member.Role); err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// Invite Repository Implementation
func (db *PostgresDB) CreateInvite(ctx context.Context, roomID, inviterID, inviteeID int) (*models.Invite, error) {
	query := `
		INSERT INTO invites (room_id, inviter_id, invitee_id, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING id, room_id, inviter_id, invitee_id, status, created_at`

	inv := &models.Invite{}
	err := db.pool.QueryRow(ctx, query, roomID, inviterID, inviteeID).Scan(
		&inv.ID, &inv.RoomID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	return inv, nil
}

func (db *PostgresDB) GetInviteByID(ctx context.Context, id int) (*models.Invite, error) {
	query := `SELECT id, room_id, inviter_id, invitee_id, status, created_at FROM invites WHERE id = $1`

	inv := &models.Invite{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.RoomID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return inv, nil
}

func (db *PostgresDB) ResolveInvite(ctx context.Context, id int, status models.InviteStatus) (bool, error) {
	// Conditional on the current status so a raced accept/decline loses
	// cleanly instead of overwriting a terminal state.
	query := `UPDATE invites SET status = $2 WHERE id = $1 AND status = 'pending'`

	tag, err := db.pool.Exec(ctx, query, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *PostgresDB) ListPendingInvites(ctx context.Context, inviteeID int) ([]*models.Invite, error) {
	query := `
		SELECT id, room_id, inviter_id, invitee_id, status, created_at
		FROM invites
		WHERE invitee_id = $1 AND status = 'pending'
		ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, inviteeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		inv := &models.Invite{}
		if err := rows.Scan(&inv.ID, &inv.RoomID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}

	return invites, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, roomID, senderID int, content string, senderType models.SenderType) (*models.Message, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, content, sender_type, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`

	msg := &models.Message{
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    content,
		SenderType: senderType,
	}
	err := db.pool.QueryRow(ctx, query, roomID, senderID, content, senderType).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.sender_type, u.username, m.created_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.SenderType, &msg.Username, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
