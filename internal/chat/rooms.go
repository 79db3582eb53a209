package chat

import "sync"

// Rooms creates rooms on demand and looks them up by name.
// Rooms are never removed.
type Rooms struct {
	mu           sync.Mutex
	rooms        map[string]*Room
	historyLimit int
}

// NewRooms creates an empty registry whose rooms retain historyLimit messages.
func NewRooms(historyLimit int) *Rooms {
	return &Rooms{
		rooms:        make(map[string]*Room),
		historyLimit: historyLimit,
	}
}

// GetOrCreate returns the named room, creating and registering it if needed.
func (rs *Rooms) GetOrCreate(name string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if room, ok := rs.rooms[name]; ok {
		return room
	}
	room := NewRoom(name, rs.historyLimit)
	rs.rooms[name] = room
	return room
}

// Get returns the named room without creating it.
func (rs *Rooms) Get(name string) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[name]
	return room, ok
}

// Len returns the number of rooms created so far.
func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}
