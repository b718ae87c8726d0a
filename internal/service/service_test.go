package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/repository/connection"
	connInmemory "github.com/tunesync/server/internal/repository/connection/inmemory"
	mediaDisk "github.com/tunesync/server/internal/repository/media/disk"
	"github.com/tunesync/server/internal/repository/snapshot"
	snapshotRedis "github.com/tunesync/server/internal/repository/snapshot/redis"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

// wstest builds a connection identity for session bookkeeping. Nothing
// is ever written to it in these tests.
func wstest() *wsconn.Conn {
	return wsconn.New(&websocket.Conn{})
}

type testEnv struct {
	service   *service
	registry  *room.Registry
	mediaDir  string
	mediaRepo iMediaRepo
	snapshots iSnapshotRepo
}

func newTestEnv(t *testing.T, mediaDir string) testEnv {
	t.Helper()

	logger := slog.Default()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	snapshotRepo := snapshotRedis.NewRepo(rc, time.Hour)

	mediaRepo, err := mediaDisk.NewRepo(mediaDir, "/api/v1/media", logger)
	require.NoError(t, err)

	registry := room.NewRegistry(room.Config{
		SyncInterval:  time.Second,
		MembersLimit:  9,
		PlaylistLimit: 100,
	}, logger)

	svc := NewService(registry, connInmemory.NewRepo(logger), mediaRepo, snapshotRepo, logger)

	return testEnv{
		service:   svc,
		registry:  registry,
		mediaDir:  mediaDir,
		mediaRepo: mediaRepo,
		snapshots: snapshotRepo,
	}
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, t.TempDir())
	svc := env.service

	created, err := svc.CreateRoom(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, created.RoomId)

	aliceConn := wstest()
	joined, err := svc.JoinRoom(ctx, &JoinRoomParams{
		RoomId:   created.RoomId,
		Username: "Alice",
		Conn:     aliceConn,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", joined.JoinedMember.Username)
	assert.Len(t, joined.State.Members, 1)
	assert.Len(t, joined.Conns, 1)

	bobConn := wstest()
	joinedBob, err := svc.JoinRoom(ctx, &JoinRoomParams{
		RoomId:   created.RoomId,
		Username: "Bob",
		Conn:     bobConn,
	})
	require.NoError(t, err)
	assert.Len(t, joinedBob.State.Members, 2)
	assert.Len(t, joinedBob.Conns, 2)

	session, err := svc.GetSession(bobConn)
	require.NoError(t, err)
	assert.Equal(t, created.RoomId, session.RoomId)
	assert.Equal(t, joinedBob.JoinedMember.Id, session.MemberId)

	// external track by URL
	added, err := svc.AddTrack(ctx, &AddTrackParams{
		RoomId:   created.RoomId,
		SenderId: joined.JoinedMember.Id,
		Name:     "song-a",
		URL:      "https://example.com/a.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, added.Index)
	assert.Equal(t, "https://example.com/a.mp3", added.AddedTrack.URI)
	assert.Equal(t, 0, added.Playlist.CurrentIndex)

	// uploaded track by payload
	added2, err := svc.AddTrack(ctx, &AddTrackParams{
		RoomId:   created.RoomId,
		SenderId: joined.JoinedMember.Id,
		Name:     "song-b.mp3",
		Payload:  []byte("not really audio"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added2.Index)
	require.True(t, strings.HasPrefix(added2.AddedTrack.URI, "/api/v1/media/"))

	filename := strings.TrimPrefix(added2.AddedTrack.URI, "/api/v1/media/")
	data, err := os.ReadFile(filepath.Join(env.mediaDir, filename))
	require.NoError(t, err)
	assert.Equal(t, []byte("not really audio"), data)

	// adding never starts playback
	sync, err := svc.GetSyncState(ctx, created.RoomId)
	require.NoError(t, err)
	assert.False(t, sync.IsPlaying)
	assert.Equal(t, 0, sync.CurrentIndex)

	reordered, err := svc.ReorderPlaylist(ctx, &ReorderPlaylistParams{
		RoomId:   created.RoomId,
		OldIndex: 0,
		NewIndex: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "song-b.mp3", reordered.Playlist.Tracks[0].Name)
	assert.Equal(t, 1, reordered.Playlist.CurrentIndex)

	updated, err := svc.UpdatePlayerState(ctx, &UpdatePlayerStateParams{
		RoomId:    created.RoomId,
		IsPlaying: true,
		Position:  12.5,
	})
	require.NoError(t, err)
	assert.True(t, updated.Player.IsPlaying)
	assert.GreaterOrEqual(t, updated.Player.Position, 12.5)

	played, err := svc.PlayTrack(ctx, &PlayTrackParams{
		RoomId:   created.RoomId,
		Index:    0,
		Position: 0,
		Autoplay: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, played.Player.CurrentIndex)
	assert.True(t, played.Player.IsPlaying)

	// Bob drops; the room survives with Alice in it
	resp, err := svc.DisconnectMember(ctx, &DisconnectMemberParams{Conn: bobConn})
	require.NoError(t, err)
	assert.False(t, resp.IsRoomDeleted)
	assert.Len(t, resp.Members, 1)

	// Alice drops; the room is destroyed and the uploaded file removed
	resp, err = svc.DisconnectMember(ctx, &DisconnectMemberParams{Conn: aliceConn})
	require.NoError(t, err)
	assert.True(t, resp.IsRoomDeleted)

	_, err = svc.GetSyncState(ctx, created.RoomId)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	_, err = os.Stat(filepath.Join(env.mediaDir, filename))
	assert.True(t, os.IsNotExist(err))
}

func TestDisconnectUnknownConn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, t.TempDir())

	_, err := env.service.DisconnectMember(ctx, &DisconnectMemberParams{Conn: wstest()})
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestJoinUnknownRoom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, t.TempDir())

	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{
		RoomId:   "nope",
		Username: "Alice",
		Conn:     wstest(),
	})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestAddTrackRollsBackStoredPayload(t *testing.T) {
	ctx := context.Background()
	mediaDir := t.TempDir()
	env := newTestEnv(t, mediaDir)

	_, err := env.service.AddTrack(ctx, &AddTrackParams{
		RoomId:  "nope",
		Name:    "orphan.mp3",
		Payload: []byte("bytes"),
	})
	require.ErrorIs(t, err, room.ErrRoomNotFound)

	// the stored payload must not leak when the room lookup fails
	entries, err := os.ReadDir(mediaDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteRoomRemovesSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, t.TempDir())
	svc := env.service

	created, err := svc.CreateRoom(ctx)
	require.NoError(t, err)

	conn := wstest()
	_, err = svc.JoinRoom(ctx, &JoinRoomParams{
		RoomId:   created.RoomId,
		Username: "Alice",
		Conn:     conn,
	})
	require.NoError(t, err)

	deleted, err := svc.DeleteRoom(ctx, &DeleteRoomParams{RoomId: created.RoomId})
	require.NoError(t, err)
	assert.Len(t, deleted.Conns, 1)

	_, err = svc.GetSession(conn)
	assert.ErrorIs(t, err, connection.ErrNotFound)

	_, err = svc.DeleteRoom(ctx, &DeleteRoomParams{RoomId: created.RoomId})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestRestoreSkippedRecordHoldsNoMediaRef(t *testing.T) {
	ctx := context.Background()
	mediaDir := t.TempDir()
	env := newTestEnv(t, mediaDir)

	uri, err := env.mediaRepo.Store("shared.mp3", []byte("payload"))
	require.NoError(t, err)
	filename := strings.TrimPrefix(uri, "/api/v1/media/")

	// a fresh process: new registry, refcounts on disk media are gone
	logger := slog.Default()
	registry := room.NewRegistry(room.Config{
		SyncInterval:  time.Second,
		MembersLimit:  9,
		PlaylistLimit: 100,
	}, logger)
	takenId := registry.CreateRoom()

	trackRecord := func(id string) snapshot.Record {
		return snapshot.Record{
			Id: id,
			Tracks: []snapshot.TrackRecord{
				{Id: "track-1", Name: "shared.mp3", URI: uri, AddedById: "m1", AddedAt: time.Now().UTC()},
			},
			CurrentIndex: 0,
		}
	}
	// one record collides with a live room and is skipped; the other is
	// installed and becomes the uri's only holder
	stale := trackRecord(takenId)
	require.NoError(t, env.snapshots.Save(ctx, &stale))
	fresh := trackRecord("restored-00")
	require.NoError(t, env.snapshots.Save(ctx, &fresh))

	mediaRepo, err := mediaDisk.NewRepo(mediaDir, "/api/v1/media", logger)
	require.NoError(t, err)

	restarted := NewService(registry, connInmemory.NewRepo(logger), mediaRepo, env.snapshots, logger)
	require.NoError(t, restarted.RestoreRooms(ctx))

	// destroying the only holder must reclaim the file: a ref leaked to
	// the skipped record would keep it alive forever
	require.NoError(t, registry.DeleteRoom("restored-00"))

	_, err = os.Stat(filepath.Join(mediaDir, filename))
	assert.True(t, os.IsNotExist(err))
}

func TestFlushAndRestore(t *testing.T) {
	ctx := context.Background()
	mediaDir := t.TempDir()
	env := newTestEnv(t, mediaDir)
	svc := env.service

	created, err := svc.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, &JoinRoomParams{
		RoomId:   created.RoomId,
		Username: "Alice",
		Conn:     wstest(),
	})
	require.NoError(t, err)

	added, err := svc.AddTrack(ctx, &AddTrackParams{
		RoomId:  created.RoomId,
		Name:    "keeper.mp3",
		Payload: []byte("payload"),
	})
	require.NoError(t, err)

	_, err = svc.UpdatePlayerState(ctx, &UpdatePlayerStateParams{
		RoomId:    created.RoomId,
		IsPlaying: true,
		Position:  30,
	})
	require.NoError(t, err)

	require.NoError(t, svc.FlushSnapshots(ctx))

	// the flushed registry is gone; bring up a fresh one over the same
	// stores, as a restart would
	logger := slog.Default()
	registry := room.NewRegistry(room.Config{
		SyncInterval:  time.Second,
		MembersLimit:  9,
		PlaylistLimit: 100,
	}, logger)
	restarted := NewService(registry, connInmemory.NewRepo(logger), env.mediaRepo, env.snapshots, logger)

	require.NoError(t, restarted.RestoreRooms(ctx))

	sync, err := restarted.GetSyncState(ctx, created.RoomId)
	require.NoError(t, err)
	assert.False(t, sync.IsPlaying)
	assert.GreaterOrEqual(t, sync.Position, 30.0)
	assert.Equal(t, 0, sync.CurrentIndex)

	r, err := registry.GetRoom(created.RoomId)
	require.NoError(t, err)
	state := r.State()
	require.Len(t, state.Playlist.Tracks, 1)
	assert.Equal(t, added.AddedTrack.URI, state.Playlist.Tracks[0].URI)
	assert.Empty(t, state.Members)
}
