package snapshot

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("snapshot not found")

// Record is the persisted form of one room, stored as an opaque blob.
// Playback is never resumed from a record: restore always forces the
// player to paused.
type Record struct {
	Id           string        `json:"id"`
	Tracks       []TrackRecord `json:"tracks"`
	CurrentIndex int           `json:"current_index"`
	IsPlaying    bool          `json:"is_playing"`
	Position     float64       `json:"position"`
}

type TrackRecord struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	AddedById string    `json:"added_by_id"`
	AddedAt   time.Time `json:"added_at"`
}
