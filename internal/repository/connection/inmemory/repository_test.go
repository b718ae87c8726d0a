package inmemory

import (
	"log/slog"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/repository/connection"
	"github.com/tunesync/server/pkg/wsconn"
)

func TestAddGetRemove(t *testing.T) {
	repo := NewRepo(slog.Default())
	conn := wsconn.New(&websocket.Conn{})

	require.NoError(t, repo.Add(conn, "member-1", "room-1"))

	got, err := repo.GetConn("member-1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	session, err := repo.GetSession(conn)
	require.NoError(t, err)
	assert.Equal(t, connection.Session{MemberId: "member-1", RoomId: "room-1"}, session)

	session, err = repo.RemoveByConn(conn)
	require.NoError(t, err)
	assert.Equal(t, "member-1", session.MemberId)

	_, err = repo.GetConn("member-1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
	_, err = repo.GetSession(conn)
	assert.ErrorIs(t, err, connection.ErrNotFound)
	_, err = repo.RemoveByConn(conn)
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestAddDuplicate(t *testing.T) {
	repo := NewRepo(slog.Default())
	conn := wsconn.New(&websocket.Conn{})

	require.NoError(t, repo.Add(conn, "member-1", "room-1"))

	assert.ErrorIs(t, repo.Add(conn, "member-2", "room-1"), connection.ErrAlreadyExists)
	assert.ErrorIs(t, repo.Add(wsconn.New(&websocket.Conn{}), "member-1", "room-1"), connection.ErrAlreadyExists)
}

func TestRemoveByMemberId(t *testing.T) {
	repo := NewRepo(slog.Default())
	conn := wsconn.New(&websocket.Conn{})

	require.NoError(t, repo.Add(conn, "member-1", "room-1"))
	require.NoError(t, repo.RemoveByMemberId("member-1"))

	_, err := repo.GetSession(conn)
	assert.ErrorIs(t, err, connection.ErrNotFound)

	assert.ErrorIs(t, repo.RemoveByMemberId("member-1"), connection.ErrNotFound)
}
