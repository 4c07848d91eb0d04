package presence

import (
	"testing"

	"chathub/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Session) []protocol.Frame {
	var frames []protocol.Frame
	for {
		select {
		case data, ok := <-s.Outbound():
			if !ok {
				return frames
			}
			f, err := protocol.Decode(data)
			if err == nil {
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	r := NewRegistry()

	first := NewSession(1, "alice", 10)
	second := NewSession(1, "alice", 10)
	r.Join(first)
	r.Join(second)

	assert.Equal(t, 1, r.Online(10), "same user announced twice is one entry")

	users := r.Snapshot(10)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	// The replaced session's outbound stream is closed.
	_, ok := <-first.Outbound()
	assert.False(t, ok)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s := NewSession(1, "alice", 10)
	r.Join(s)

	r.Leave(s)
	r.Leave(s)
	assert.Equal(t, 0, r.Online(10))
}

func TestStaleLeaveDoesNotEvictReplacement(t *testing.T) {
	r := NewRegistry()
	old := NewSession(1, "alice", 10)
	r.Join(old)
	replacement := NewSession(1, "alice", 10)
	r.Join(replacement)

	// A disconnect race on the replaced session must not remove the
	// live one.
	r.Leave(old)
	assert.Equal(t, 1, r.Online(10))
}

func TestBroadcastReachesAllRoomSessions(t *testing.T) {
	r := NewRegistry()
	alice := NewSession(1, "alice", 10)
	bob := NewSession(2, "bob", 10)
	other := NewSession(3, "carol", 11)
	r.Join(alice)
	r.Join(bob)
	r.Join(other)

	r.Broadcast(10, &protocol.ChatMessage{RoomID: 10, UserID: 1, Content: "hi"})

	require.Len(t, drain(alice), 1)
	require.Len(t, drain(bob), 1)
	assert.Empty(t, drain(other), "broadcast stays inside the room")
}

func TestBroadcastSkipsSlowSessions(t *testing.T) {
	r := NewRegistry()
	fast := NewSession(1, "fast", 10)
	slow := NewSession(2, "slow", 10)
	r.Join(fast)
	r.Join(slow)

	// Saturate the slow session's buffer.
	for i := 0; i < 300; i++ {
		slow.deliver([]byte("x"))
	}

	r.Broadcast(10, &protocol.Typing{UserID: 1, RoomID: 10})

	assert.Len(t, drain(fast), 1, "slow peer never blocks delivery to others")
	assert.Equal(t, 1, r.Online(10), "saturated session is evicted")
}

func TestSendAfterLeaveReportsFalse(t *testing.T) {
	r := NewRegistry()
	s := NewSession(1, "alice", 10)
	r.Join(s)
	r.Leave(s)

	assert.False(t, s.Send(protocol.NewError("gone", "")))
}

func TestAnnounceAllReachesEveryRoom(t *testing.T) {
	r := NewRegistry()
	a := NewSession(1, "alice", 10)
	b := NewSession(2, "bob", 11)
	r.Join(a)
	r.Join(b)

	r.AnnounceAll(&protocol.RoomCreated{})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestOnlineUsersFrame(t *testing.T) {
	r := NewRegistry()
	r.Join(NewSession(1, "alice", 10))
	r.Join(NewSession(2, "bob", 10))

	frame := r.OnlineUsersFrame(10)
	assert.Equal(t, protocol.TypeOnlineUsers, frame.Kind())
	assert.Len(t, frame.Users, 2)
	assert.NotEmpty(t, frame.Timestamp)
}
