package room

import "time"

// transport holds the authoritative playback state of a room: the
// position recorded at the last state change plus the instant it was
// recorded at. The server never runs a ticking playhead; the current
// position is always recomputed from this single epoch.
type transport struct {
	basePosition float64
	lastSyncAt   time.Time
	isPlaying    bool
}

// set records a new authoritative (position, instant) pair. basePosition
// and lastSyncAt always change together.
func (t *transport) set(position float64, at time.Time, isPlaying bool) {
	if position < 0 {
		position = 0
	}
	t.basePosition = position
	t.lastSyncAt = at
	t.isPlaying = isPlaying
}

// position extrapolates the playback position to now. While paused the
// position is frozen at basePosition.
func (t transport) position(now time.Time) float64 {
	if !t.isPlaying {
		return t.basePosition
	}

	return t.basePosition + now.Sub(t.lastSyncAt).Seconds()
}
