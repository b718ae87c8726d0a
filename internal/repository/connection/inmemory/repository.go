package inmemory

import (
	"log/slog"
	"sync"

	"github.com/tunesync/server/internal/repository/connection"
	"github.com/tunesync/server/pkg/wsconn"
)

type repo struct {
	sessions map[*wsconn.Conn]connection.Session
	conns    map[string]*wsconn.Conn
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		sessions: make(map[*wsconn.Conn]connection.Session),
		conns:    make(map[string]*wsconn.Conn),
		logger:   logger,
	}
}

func (r *repo) Add(conn *wsconn.Conn, memberId, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; ok {
		return connection.ErrAlreadyExists
	}
	if _, ok := r.conns[memberId]; ok {
		return connection.ErrAlreadyExists
	}

	r.sessions[conn] = connection.Session{MemberId: memberId, RoomId: roomId}
	r.conns[memberId] = conn

	r.logger.Debug("connection added", "member_id", memberId, "room_id", roomId)
	return nil
}

func (r *repo) RemoveByConn(conn *wsconn.Conn) (connection.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[conn]
	if !ok {
		return connection.Session{}, connection.ErrNotFound
	}

	delete(r.sessions, conn)
	delete(r.conns, session.MemberId)

	r.logger.Debug("connection removed", "member_id", session.MemberId)
	return session, nil
}

func (r *repo) RemoveByMemberId(memberId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[memberId]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.sessions, conn)
	delete(r.conns, memberId)

	return nil
}

func (r *repo) GetConn(memberId string) (*wsconn.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[memberId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) GetSession(conn *wsconn.Conn) (connection.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[conn]
	if !ok {
		return connection.Session{}, connection.ErrNotFound
	}

	return session, nil
}
