package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/omochice/toy-room-relay/pkg/protocol"
)

// DefaultHistoryLimit caps how many messages a room retains.
const DefaultHistoryLimit = 1000

// Participant binds a user-chosen identifier to a connection inside one room.
type Participant struct {
	ID       string
	Conn     Conn
	JoinedAt time.Time
}

// Room owns the membership and the message history of one named channel.
// The membership map is both the roster and the broadcast list.
type Room struct {
	name  string
	limit int
	now   func() time.Time

	mu           sync.Mutex
	participants map[string]*Participant
	history      []protocol.Message
	last         time.Time
}

// NewRoom creates an empty room retaining at most limit messages.
// A non-positive limit selects DefaultHistoryLimit.
func NewRoom(name string, limit int) *Room {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Room{
		name:         name,
		limit:        limit,
		now:          time.Now,
		participants: make(map[string]*Participant),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Join inserts the participant, replacing any entry with the same id.
func (r *Room) Join(id string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[id] = &Participant{ID: id, Conn: conn, JoinedAt: r.now()}
}

// Enter joins id and writes the room_joined snapshot to conn under the same
// lock, so no broadcast reaches conn before its snapshot and the history it
// receives never overlaps with live messages. If the snapshot cannot be
// delivered the room is left as it was.
func (r *Room) Enter(ctx context.Context, id string, conn Conn, window int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.participants[id]
	r.participants[id] = &Participant{ID: id, Conn: conn, JoinedAt: r.now()}

	reply := protocol.Message{
		Type:         protocol.MessageTypeRoomJoined,
		RoomID:       r.name,
		UserID:       id,
		Participants: r.participantsLocked(),
		History:      r.historyLocked(window),
	}
	data, err := reply.Encode()
	if err == nil {
		err = conn.Write(ctx, data)
	}
	if err != nil {
		if had {
			r.participants[id] = prev
		} else {
			delete(r.participants, id)
		}
		return fmt.Errorf("failed to send room snapshot: %w", err)
	}
	return nil
}

// Leave removes the participant. It reports whether an entry was removed.
func (r *Room) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	return true
}

// leaveConn removes id only while it is still bound to conn, so a
// connection never evicts a later joiner that reused its identifier.
func (r *Room) leaveConn(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok || p.Conn != conn {
		return false
	}
	delete(r.participants, id)
	return true
}

// Append stamps msg with the current time and records it.
// Timestamps never go backwards within a room.
func (r *Room) Append(msg protocol.Message) protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Timestamp = r.nextTimestamp()
	r.record(msg)
	return msg
}

func (r *Room) nextTimestamp() time.Time {
	ts := r.now()
	if ts.Before(r.last) {
		ts = r.last
	}
	return ts
}

func (r *Room) record(msg protocol.Message) {
	r.last = msg.Timestamp
	r.history = append(r.history, msg)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
}

// Broadcast sends msg to every participant except exclude. Participants
// whose send fails are removed once the pass is over. It returns the number
// of successful deliveries.
func (r *Room) Broadcast(ctx context.Context, msg protocol.Message, exclude string) (int, error) {
	data, err := msg.Encode()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(ctx, data, exclude), nil
}

// Post appends msg and delivers it to every participant, sender included,
// under one lock so delivery order matches history order. Nothing is
// recorded if msg cannot be encoded.
func (r *Room) Post(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.Timestamp = r.nextTimestamp()
	data, err := msg.Encode()
	if err != nil {
		return protocol.Message{}, err
	}
	r.record(msg)
	r.broadcastLocked(ctx, data, "")
	return msg, nil
}

func (r *Room) broadcastLocked(ctx context.Context, data []byte, exclude string) int {
	var failed []string
	delivered := 0
	for id, p := range r.participants {
		if exclude != "" && id == exclude {
			continue
		}
		if err := p.Conn.Write(ctx, data); err != nil {
			log.Printf("Error broadcasting to %s in room %s: %v", id, r.name, err)
			failed = append(failed, id)
			continue
		}
		delivered++
	}

	for _, id := range failed {
		delete(r.participants, id)
	}
	return delivered
}

// Participants returns participant identifiers in join order.
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantsLocked()
}

func (r *Room) participantsLocked() []string {
	ps := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})

	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

// Has reports whether id is currently a participant.
func (r *Room) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[id]
	return ok
}

// History returns up to the n most recent messages, oldest first.
func (r *Room) History(n int) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyLocked(n)
}

func (r *Room) historyLocked(n int) []protocol.Message {
	if n <= 0 || n > len(r.history) {
		n = len(r.history)
	}
	out := make([]protocol.Message, n)
	copy(out, r.history[len(r.history)-n:])
	return out
}
