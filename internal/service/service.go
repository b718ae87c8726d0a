package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tunesync/server/internal/repository/connection"
	"github.com/tunesync/server/internal/repository/snapshot"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

var ErrMediaResolutionFailed = errors.New("media resolution failed")

type iConnRepo interface {
	Add(conn *wsconn.Conn, memberId, roomId string) error
	RemoveByConn(conn *wsconn.Conn) (connection.Session, error)
	RemoveByMemberId(memberId string) error
	GetConn(memberId string) (*wsconn.Conn, error)
	GetSession(conn *wsconn.Conn) (connection.Session, error)
}

type iMediaRepo interface {
	Store(name string, payload []byte) (string, error)
	Acquire(uri string)
	Resolve(uri string) bool
	Release(uri string)
}

type iSnapshotRepo interface {
	Save(ctx context.Context, record *snapshot.Record) error
	GetAll(ctx context.Context) ([]snapshot.Record, error)
	Delete(ctx context.Context, roomId string) error
}

type service struct {
	registry     *room.Registry
	connRepo     iConnRepo
	mediaRepo    iMediaRepo
	snapshotRepo iSnapshotRepo
	logger       *slog.Logger
}

func NewService(registry *room.Registry, connRepo iConnRepo, mediaRepo iMediaRepo, snapshotRepo iSnapshotRepo, logger *slog.Logger) *service {
	s := &service{
		registry:     registry,
		connRepo:     connRepo,
		mediaRepo:    mediaRepo,
		snapshotRepo: snapshotRepo,
		logger:       logger,
	}

	registry.OnRelease(mediaRepo.Release)

	return s
}

// GetSession resolves which member and room a live connection belongs to.
func (s service) GetSession(conn *wsconn.Conn) (connection.Session, error) {
	return s.connRepo.GetSession(conn)
}

// GetRoomConns resolves the live connections of every member of a room.
// Members whose connection is already gone are skipped: a disconnect may
// be mid-flight, the membership change will follow on its own.
func (s service) GetRoomConns(roomId string) ([]*wsconn.Conn, error) {
	r, err := s.registry.GetRoom(roomId)
	if err != nil {
		return nil, err
	}

	return s.connsForMembers(r.Members()), nil
}

func (s service) connsForMembers(members []room.Member) []*wsconn.Conn {
	conns := make([]*wsconn.Conn, 0, len(members))
	for _, member := range members {
		conn, err := s.connRepo.GetConn(member.Id)
		if err != nil {
			s.logger.Debug("no connection for member", "member_id", member.Id)
			continue
		}
		conns = append(conns, conn)
	}

	return conns
}
