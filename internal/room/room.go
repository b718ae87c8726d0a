package room

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type Member struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

type PlaylistState struct {
	Tracks       []Track `json:"tracks"`
	CurrentIndex int     `json:"current_index"`
}

type PlayerState struct {
	IsPlaying    bool    `json:"is_playing"`
	CurrentIndex int     `json:"current_index"`
	Position     float64 `json:"position"`
	UpdatedAt    int64   `json:"updated_at"`
}

// State is the full snapshot handed to a joining member. It is captured
// under the room lock, so it never reflects a half-applied mutation.
type State struct {
	Id       string        `json:"id"`
	Playlist PlaylistState `json:"playlist"`
	Player   PlayerState   `json:"player"`
	Members  []Member      `json:"members"`
}

// noTrack is the currentIndex sentinel for an empty playlist.
const noTrack = -1

type deps struct {
	syncInterval  time.Duration
	membersLimit  int
	playlistLimit int
	publish       PublishFunc
	logger        *slog.Logger
	now           func() time.Time
}

// Room is a unit of mutual exclusion: every mutation and every state
// read goes through mu. Rooms are created and destroyed only by the
// Registry and never reference it back.
type Room struct {
	Id string

	mu           sync.Mutex
	members      map[string]string
	memberOrder  []string
	playlist     playlist
	currentIndex int
	transport    transport
	sched        *scheduler
	closed       bool

	deps deps
}

func newRoom(id string, deps deps) *Room {
	return &Room{
		Id:           id,
		members:      make(map[string]string),
		currentIndex: noTrack,
		deps:         deps,
	}
}

func (r *Room) Join(memberId, username string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return State{}, ErrRoomNotFound
	}
	if len(r.members) >= r.deps.membersLimit {
		return State{}, ErrMembersLimitReached
	}

	if _, ok := r.members[memberId]; !ok {
		r.memberOrder = append(r.memberOrder, memberId)
	}
	r.members[memberId] = username

	return r.state(), nil
}

// removeMember reports whether the room became empty. Destroy-on-empty
// is the Registry's job; the room only reports.
func (r *Room) removeMember(memberId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRoomNotFound
	}
	if _, ok := r.members[memberId]; !ok {
		return false, ErrMemberNotFound
	}

	delete(r.members, memberId)
	if i := slices.Index(r.memberOrder, memberId); i >= 0 {
		r.memberOrder = slices.Delete(r.memberOrder, i, i+1)
	}

	return len(r.members) == 0, nil
}

func (r *Room) Members() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.memberList()
}

func (r *Room) memberList() []Member {
	members := make([]Member, 0, len(r.memberOrder))
	for _, id := range r.memberOrder {
		members = append(members, Member{Id: id, Username: r.members[id]})
	}

	return members
}

// AddTrack appends a track and returns its index along with the playlist
// state after the append. The first track of a room (or any track added
// while no track is current) becomes the current track, but playback is
// never started implicitly: an explicit play is always required.
func (r *Room) AddTrack(track Track) (int, PlaylistState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, PlaylistState{}, ErrRoomNotFound
	}
	if r.playlist.length() >= r.deps.playlistLimit {
		return 0, PlaylistState{}, ErrPlaylistLimitReached
	}

	index := r.playlist.append(track)
	if r.currentIndex == noTrack {
		r.currentIndex = index
	}

	return index, r.playlistState(), nil
}

// Reorder moves the track at oldIndex to newIndex. The current track
// stays current: if it is the moved track its index follows the move,
// and if the move crosses over it from either side its index shifts by
// one toward the vacated slot.
func (r *Room) Reorder(oldIndex, newIndex int) (PlaylistState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return PlaylistState{}, ErrRoomNotFound
	}

	if err := r.playlist.move(oldIndex, newIndex); err != nil {
		return PlaylistState{}, err
	}

	switch {
	case r.currentIndex == oldIndex:
		r.currentIndex = newIndex
	case oldIndex < r.currentIndex && newIndex >= r.currentIndex:
		r.currentIndex--
	case oldIndex > r.currentIndex && newIndex <= r.currentIndex:
		r.currentIndex++
	}

	return r.playlistState(), nil
}

// SetPlaying records the position the play command was issued at and
// starts the room's broadcast scheduler. A running scheduler is stopped
// and drained before its replacement starts, so two schedulers are
// never live for one room.
func (r *Room) SetPlaying(position float64) (PlayerState, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return PlayerState{}, ErrRoomNotFound
	}
	if r.playlist.length() == 0 {
		r.mu.Unlock()
		r.deps.logger.Error("play rejected on empty playlist", "room_id", r.Id)
		return PlayerState{}, ErrInvariantViolation
	}

	r.transport.set(position, r.deps.now(), true)
	state := r.playerState()
	r.mu.Unlock()

	r.stopScheduler()
	r.ensureScheduler()

	return state, nil
}

// SetPaused freezes the position and stops the broadcast scheduler.
func (r *Room) SetPaused(position float64) (PlayerState, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return PlayerState{}, ErrRoomNotFound
	}
	if r.playlist.length() == 0 {
		r.mu.Unlock()
		r.deps.logger.Error("pause rejected on empty playlist", "room_id", r.Id)
		return PlayerState{}, ErrInvariantViolation
	}

	r.transport.set(position, r.deps.now(), false)
	state := r.playerState()
	r.mu.Unlock()

	r.stopScheduler()

	return state, nil
}

// SetTrack switches the current track, resetting the transport epoch to
// startPosition. Playback starts only when autoplay is set.
func (r *Room) SetTrack(index int, startPosition float64, autoplay bool) (PlayerState, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return PlayerState{}, ErrRoomNotFound
	}
	if index < 0 || index >= r.playlist.length() {
		r.mu.Unlock()
		return PlayerState{}, ErrIndexOutOfRange
	}

	r.currentIndex = index
	r.transport.set(startPosition, r.deps.now(), autoplay)
	state := r.playerState()
	r.mu.Unlock()

	r.stopScheduler()
	r.ensureScheduler()

	return state, nil
}

// Position returns the drift-compensated playback position.
func (r *Room) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.transport.position(r.deps.now())
}

// SyncState returns a consistent transport snapshot for broadcasting.
// It reports false once the room is closed, so a scheduler tick racing a
// destroy never publishes into a dead room.
func (r *Room) SyncState() (SyncState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return SyncState{}, false
	}

	now := r.deps.now()

	return SyncState{
		Position:     r.transport.position(now),
		Timestamp:    now.UnixMilli(),
		CurrentIndex: r.currentIndex,
		IsPlaying:    r.transport.isPlaying,
	}, true
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state()
}

func (r *Room) state() State {
	return State{
		Id:       r.Id,
		Playlist: r.playlistState(),
		Player:   r.playerState(),
		Members:  r.memberList(),
	}
}

func (r *Room) playlistState() PlaylistState {
	return PlaylistState{
		Tracks:       r.playlist.asList(),
		CurrentIndex: r.currentIndex,
	}
}

func (r *Room) playerState() PlayerState {
	return PlayerState{
		IsPlaying:    r.transport.isPlaying,
		CurrentIndex: r.currentIndex,
		Position:     r.transport.position(r.deps.now()),
		UpdatedAt:    r.transport.lastSyncAt.UnixMilli(),
	}
}

// stopScheduler detaches the current scheduler handle and blocks until
// its goroutine has exited. Must not be called with the room lock held:
// the goroutine may be blocked acquiring it for a state read.
func (r *Room) stopScheduler() {
	r.mu.Lock()
	old := r.sched
	r.sched = nil
	r.mu.Unlock()

	if old != nil {
		old.stopAndWait()
	}
}

// ensureScheduler starts a broadcast scheduler when the room is still
// playing and has none running. Re-checks closed: a destroy may have
// landed between the caller's state change and this call.
func (r *Room) ensureScheduler() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.transport.isPlaying || r.sched != nil {
		return
	}

	s := newScheduler()
	r.sched = s
	go s.run(r, r.deps.syncInterval, r.deps.publish)
}

// close marks the room dead and hands back everything the Registry has
// to tear down: the final snapshot, the scheduler handle to stop and the
// tracks whose media references must be released.
func (r *Room) close() (Snapshot, *scheduler, []Track) {
	r.mu.Lock()

	r.closed = true
	snap := r.snapshot()
	sched := r.sched
	r.sched = nil
	tracks := r.playlist.asList()

	r.mu.Unlock()

	return snap, sched, tracks
}
