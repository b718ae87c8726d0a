package room

import "time"

// SyncState is the payload of one periodic sync broadcast.
type SyncState struct {
	Position     float64 `json:"position"`
	Timestamp    int64   `json:"server_timestamp"`
	CurrentIndex int     `json:"current_index"`
	IsPlaying    bool    `json:"is_playing"`
}

// PublishFunc delivers a sync broadcast to every member of a room. It is
// invoked outside the room lock and must not call back into the room.
type PublishFunc func(roomId string, state SyncState)

// scheduler is the handle of one room's broadcast goroutine. A room has
// at most one live scheduler; starting playback replaces the old handle
// before the new one is created.
type scheduler struct {
	stop chan struct{}
	done chan struct{}
}

func newScheduler() *scheduler {
	return &scheduler{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (s *scheduler) run(r *Room, interval time.Duration, publish PublishFunc) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			state, ok := r.SyncState()
			if !ok || !state.IsPlaying {
				continue
			}
			publish(r.Id, state)
		}
	}
}

// stopAndWait signals the goroutine and blocks until it has exited.
// Must never be called while holding the room lock: the goroutine may be
// blocked acquiring it for a state read.
func (s *scheduler) stopAndWait() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
