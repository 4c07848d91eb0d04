package router

import (
	"context"
	"sync"
	"time"

	"chathub/internal/access"
	"chathub/internal/database"
	"chathub/internal/models"
	"chathub/internal/presence"
	"chathub/internal/protocol"
	"chathub/pkg/logger"

	"golang.org/x/time/rate"
)

// typingInterval bounds typing fan-out to one event per user per
// window; anything faster is silently dropped.
const typingInterval = 2 * time.Second

// Router classifies inbound frames and dispatches them: authorize
// through the access controller, persist through storage, fan out
// through the presence registry. It is called from each session's read
// loop, so frames from one sender are always handled in arrival order;
// no order is guaranteed across senders.
type Router struct {
	db       database.MessageRepository
	access   *access.Controller
	registry *presence.Registry

	mu     sync.Mutex
	typing map[int]*rate.Limiter
}

func NewRouter(db database.MessageRepository, ctrl *access.Controller, registry *presence.Registry) *Router {
	return &Router{
		db:       db,
		access:   ctrl,
		registry: registry,
		typing:   make(map[int]*rate.Limiter),
	}
}

// HandleFrame processes one raw inbound envelope from a session.
func (r *Router) HandleFrame(ctx context.Context, s *presence.Session, raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		logger.Debug("Session %s: dropping frame: %v", s.ID, err)
		s.Send(protocol.NewError("malformed frame", "frame could not be decoded"))
		return
	}

	switch f := frame.(type) {
	case *protocol.Ping:
		s.Send(protocol.NewPong(f.Timestamp))

	case *protocol.Pong:
		// Liveness bookkeeping belongs to the sending side's session
		// state machine; nothing to do here.

	case *protocol.Handshake:
		// Admission already happened during the upgrade; a repeated
		// handshake is harmless.
		logger.Debug("Session %s: ignoring repeated handshake", s.ID)

	case *protocol.ChatMessage:
		r.handleChatMessage(ctx, s, f)

	case *protocol.Typing:
		r.handleTyping(s)

	case *protocol.GetOnlineUsers:
		s.Send(r.registry.OnlineUsersFrame(s.RoomID))

	case *protocol.OnlineUsers, *protocol.RoomCreated, *protocol.Error:
		s.Send(protocol.NewError("unexpected frame", "server-to-client frame received from client"))
	}
}

func (r *Router) handleChatMessage(ctx context.Context, s *presence.Session, f *protocol.ChatMessage) {
	if f.RoomID != 0 && f.RoomID != s.RoomID {
		s.Send(protocol.NewError("access denied", "message addressed to another room"))
		return
	}
	if f.Content == "" {
		s.Send(protocol.NewError("invalid message", "content is required"))
		return
	}

	// Authorization gates everything: an unauthorized message is
	// reported to the sender only and is never persisted or broadcast.
	if _, err := r.access.CheckAccess(ctx, s.RoomID, s.UserID); err != nil {
		detail := "not a member of this room"
		if ae, ok := access.AsError(err); ok {
			detail = ae.Detail
		}
		s.Send(protocol.NewError("access denied", detail))
		return
	}

	msg, err := r.db.SaveMessage(ctx, s.RoomID, s.UserID, f.Content, models.SenderTypeUser)
	if err != nil {
		logger.Error("Session %s: failed to save message: %v", s.ID, err)
		s.Send(protocol.NewError("message not delivered", "could not store message"))
		return
	}

	r.registry.Broadcast(s.RoomID, &protocol.ChatMessage{
		MessageID: msg.ID,
		RoomID:    s.RoomID,
		UserID:    s.UserID,
		Username:  s.Username,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
	})
}

func (r *Router) handleTyping(s *presence.Session) {
	if !r.typingLimiter(s.UserID).Allow() {
		return
	}
	r.registry.Broadcast(s.RoomID, &protocol.Typing{UserID: s.UserID, RoomID: s.RoomID})
}

func (r *Router) typingLimiter(userID int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim := r.typing[userID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(typingInterval), 1)
		r.typing[userID] = lim
	}
	return lim
}
