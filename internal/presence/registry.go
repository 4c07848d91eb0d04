package presence

import (
	"sync"
	"time"

	"chathub/internal/models"
	"chathub/internal/protocol"
	"chathub/pkg/logger"

	"github.com/google/uuid"
)

// Session is one connected client's outbound half: a buffered channel
// drained by that connection's write pump. Delivery is non-blocking; a
// session that cannot keep up is dropped from its room rather than
// stalling everyone else.
type Session struct {
	ID       string
	UserID   int
	Username string
	RoomID   int

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewSession(userID int, username string, roomID int) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		send:     make(chan []byte, 256),
	}
}

// Outbound is the stream the connection's write pump drains. It is
// closed when the session is removed from the registry.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Send queues a frame for this session alone. Best effort, like
// Broadcast: a full buffer drops the frame and reports false.
func (s *Session) Send(frame protocol.Frame) bool {
	data, err := protocol.Encode(frame)
	if err != nil {
		logger.Error("Failed to encode %s frame: %v", frame.Kind(), err)
		return false
	}
	return s.deliver(data)
}

// Registry is the authoritative map of online users per room. It is
// the only copy of presence state; every connection handler shares the
// same instance and all mutation happens under its lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int]map[int]*Session
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int]map[int]*Session)}
}

// Join announces a session in its room. Keyed by user ID, so
// re-announcing an already-present user replaces the previous session
// instead of duplicating the entry.
func (r *Registry) Join(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[s.RoomID]
	if room == nil {
		room = make(map[int]*Session)
		r.rooms[s.RoomID] = room
	}
	if prev, ok := room[s.UserID]; ok && prev != s {
		prev.close()
	}
	room[s.UserID] = s
	logger.Debug("Session %s: user %d online in room %d", s.ID, s.UserID, s.RoomID)
}

// Leave removes the session from its room. Idempotent; a stale leave
// for a session that was already replaced does nothing.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[s.RoomID]
	if room == nil || room[s.UserID] != s {
		return
	}
	delete(room, s.UserID)
	s.close()
	if len(room) == 0 {
		delete(r.rooms, s.RoomID)
	}
	logger.Debug("Session %s: user %d offline in room %d", s.ID, s.UserID, s.RoomID)
}

// Snapshot returns the users currently connected to the room.
func (r *Registry) Snapshot(roomID int) []models.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	users := make([]models.OnlineUser, 0, len(room))
	for _, s := range room {
		users = append(users, models.OnlineUser{
			UserID:   s.UserID,
			Username: s.Username,
			Status:   "online",
		})
	}
	return users
}

func (r *Registry) Online(roomID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Broadcast fans a frame out to every session in the room. Best
// effort: a session whose buffer is full is evicted and skipped, and
// never fails delivery for the others.
func (r *Registry) Broadcast(roomID int, frame protocol.Frame) {
	data, err := protocol.Encode(frame)
	if err != nil {
		logger.Error("Failed to encode %s frame: %v", frame.Kind(), err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverLocked(roomID, data)
}

// AnnounceAll delivers a frame to every connected session in every
// room, used to push newly created public rooms to all clients.
func (r *Registry) AnnounceAll(frame protocol.Frame) {
	data, err := protocol.Encode(frame)
	if err != nil {
		logger.Error("Failed to encode %s frame: %v", frame.Kind(), err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.rooms {
		r.deliverLocked(roomID, data)
	}
}

func (r *Registry) deliverLocked(roomID int, data []byte) {
	room := r.rooms[roomID]
	for userID, s := range room {
		if !s.deliver(data) {
			delete(room, userID)
			s.close()
			logger.Warn("Evicted slow session %s from room %d", s.ID, roomID)
		}
	}
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
}

// OnlineUsersFrame builds the reply to a get_online_users request from
// the current snapshot.
func (r *Registry) OnlineUsersFrame(roomID int) *protocol.OnlineUsers {
	return &protocol.OnlineUsers{
		Users:     r.Snapshot(roomID),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
