package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tunesync/server/pkg/randstr"
)

const roomIdLength = 10

type Config struct {
	SyncInterval  time.Duration
	MembersLimit  int
	PlaylistLimit int
}

// ReleaseFunc gives a track's media reference back to the media store
// when its room is destroyed.
type ReleaseFunc func(uri string)

// AdoptFunc takes a media reference for a restored track, reporting
// whether the reference still resolves. It is called only for tracks of
// snapshots that are actually installed, so skipped snapshots never
// hold references.
type AdoptFunc func(uri string) bool

// Registry is the process-wide owner of room lifetime. Its map is the
// only global mutable structure; create, delete and destroy-on-empty all
// go through its lock, so an emptying room can never race a concurrent
// join into resurrection.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	cfg       Config
	generator *randstr.Generator
	logger    *slog.Logger
	now       func() time.Time
	publish   PublishFunc
	release   ReleaseFunc
}

func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &Registry{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		generator: randstr.New(letterBytes),
		logger:    logger,
		now:       time.Now,
		publish:   func(string, SyncState) {},
		release:   func(string) {},
	}
}

// OnSync sets the broadcast sink for every room's scheduler. Must be
// wired before the first room is created.
func (reg *Registry) OnSync(publish PublishFunc) {
	reg.publish = publish
}

// OnRelease sets the media cleanup callback invoked for each track of a
// destroyed room.
func (reg *Registry) OnRelease(release ReleaseFunc) {
	reg.release = release
}

// SetClock replaces the registry's time source. Used by tests.
func (reg *Registry) SetClock(now func() time.Time) {
	reg.now = now
}

func (reg *Registry) newRoomDeps() deps {
	return deps{
		syncInterval:  reg.cfg.SyncInterval,
		membersLimit:  reg.cfg.MembersLimit,
		playlistLimit: reg.cfg.PlaylistLimit,
		publish:       reg.publish,
		logger:        reg.logger,
		now:           reg.now,
	}
}

// CreateRoom installs an empty room under a fresh identifier and returns
// the identifier. It never fails: the id space is large enough that a
// collision re-roll is the only handling needed.
func (reg *Registry) CreateRoom() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var id string
	for {
		id = reg.generator.GenerateRandomString(roomIdLength)
		if _, taken := reg.rooms[id]; !taken {
			break
		}
	}

	reg.rooms[id] = newRoom(id, reg.newRoomDeps())

	return id
}

// GetRoom looks a room up. ErrRoomNotFound is a normal outcome: the room
// may have expired or never existed.
func (reg *Registry) GetRoom(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return r, nil
}

// DeleteRoom removes the room, stops its scheduler and releases its
// media references. Deleting an absent room is a no-op reported as
// ErrRoomNotFound.
func (reg *Registry) DeleteRoom(id string) error {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if !ok {
		reg.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(reg.rooms, id)
	reg.mu.Unlock()

	reg.destroy(r)

	return nil
}

// Leave removes a member and destroys the room if it became empty. The
// emptiness check and the map removal happen under the registry lock, so
// a join that sneaks in between keeps the room alive and a join that
// arrives after sees ErrRoomNotFound from the closed room.
func (reg *Registry) Leave(roomId, memberId string) (bool, error) {
	reg.mu.Lock()

	r, ok := reg.rooms[roomId]
	if !ok {
		reg.mu.Unlock()
		return false, ErrRoomNotFound
	}

	empty, err := r.removeMember(memberId)
	if err != nil {
		reg.mu.Unlock()
		return false, err
	}
	if !empty {
		reg.mu.Unlock()
		return false, nil
	}

	delete(reg.rooms, roomId)
	reg.mu.Unlock()

	reg.destroy(r)

	return true, nil
}

// destroy tears a removed room down. The scheduler is confirmed stopped
// before the room object is let go, so no tick can fire into it.
func (reg *Registry) destroy(r *Room) {
	_, sched, tracks := r.close()
	if sched != nil {
		sched.stopAndWait()
	}

	for _, track := range tracks {
		reg.release(track.URI)
	}

	reg.logger.Info("room destroyed", "room_id", r.Id)
}

// Restore rebuilds rooms from persisted snapshots. Playback never
// resumes across a restart and tracks whose media reference no longer
// resolves are dropped.
func (reg *Registry) Restore(snapshots []Snapshot, adopt AdoptFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, snap := range snapshots {
		if _, taken := reg.rooms[snap.Id]; taken {
			continue
		}

		r := newRoom(snap.Id, reg.newRoomDeps())

		current := noTrack
		for i, track := range snap.Tracks {
			if !adopt(track.URI) {
				reg.logger.Warn("dropping unresolvable track",
					"room_id", snap.Id, "uri", track.URI)
				continue
			}
			r.playlist.append(track)
			if i == snap.CurrentIndex {
				current = r.playlist.length() - 1
			}
		}
		if current == noTrack && r.playlist.length() > 0 {
			current = 0
		}
		r.currentIndex = current
		r.transport.set(snap.Position, reg.now(), false)

		reg.rooms[snap.Id] = r
		reg.logger.Info("room restored", "room_id", snap.Id, "tracks", r.playlist.length())
	}
}

// Shutdown stops every scheduler and returns the final snapshots for the
// flush. The registry is unusable afterwards.
func (reg *Registry) Shutdown() []Snapshot {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		snap, sched, _ := r.close()
		if sched != nil {
			sched.stopAndWait()
		}
		snap.IsPlaying = false
		snapshots = append(snapshots, snap)
	}

	return snapshots
}
