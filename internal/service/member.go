package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunesync/server/internal/repository/snapshot"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

type DisconnectMemberParams struct {
	Conn *wsconn.Conn
}

type DisconnectMemberResponse struct {
	MemberId      string
	RoomId        string
	IsRoomDeleted bool
	Members       []room.Member
	Conns         []*wsconn.Conn
}

// DisconnectMember runs the full leave cascade for a dropped connection:
// unregister the session, remove the membership and, when the room
// became empty, destroy it. It always runs to completion.
func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) (DisconnectMemberResponse, error) {
	session, err := s.connRepo.RemoveByConn(params.Conn)
	if err != nil {
		// never joined a room, nothing to cascade
		return DisconnectMemberResponse{}, fmt.Errorf("failed to remove connection: %w", err)
	}

	resp := DisconnectMemberResponse{
		MemberId: session.MemberId,
		RoomId:   session.RoomId,
	}

	deleted, err := s.registry.Leave(session.RoomId, session.MemberId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrMemberNotFound) {
			// the room was torn down concurrently, treat as deleted
			resp.IsRoomDeleted = true
			return resp, nil
		}
		return DisconnectMemberResponse{}, fmt.Errorf("failed to leave room: %w", err)
	}

	if deleted {
		resp.IsRoomDeleted = true
		if err := s.snapshotRepo.Delete(ctx, session.RoomId); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete room snapshot", "room_id", session.RoomId, "error", err)
		}
		s.logger.InfoContext(ctx, "last member left, room destroyed", "room_id", session.RoomId)
		return resp, nil
	}

	r, err := s.registry.GetRoom(session.RoomId)
	if err != nil {
		// deleted in between; the remaining members got their own cascades
		resp.IsRoomDeleted = true
		return resp, nil
	}

	resp.Members = r.Members()
	resp.Conns = s.connsForMembers(resp.Members)

	s.logger.InfoContext(ctx, "member disconnected", "room_id", session.RoomId, "member_id", session.MemberId)

	return resp, nil
}
