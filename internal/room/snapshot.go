package room

// Snapshot is the persisted form of a room: exactly the state needed to
// rebuild it after a restart. Membership and connection state are
// deliberately absent, they do not survive a process.
type Snapshot struct {
	Id           string  `json:"id"`
	Tracks       []Track `json:"tracks"`
	CurrentIndex int     `json:"current_index"`
	IsPlaying    bool    `json:"is_playing"`
	Position     float64 `json:"position"`
}

// snapshot captures the persisted form. Caller holds the room lock.
func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Id:           r.Id,
		Tracks:       r.playlist.asList(),
		CurrentIndex: r.currentIndex,
		IsPlaying:    r.transport.isPlaying,
		Position:     r.transport.position(r.deps.now()),
	}
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot()
}
