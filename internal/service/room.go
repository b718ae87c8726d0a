package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tunesync/server/internal/repository/snapshot"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

type CreateRoomResponse struct {
	RoomId string
}

func (s service) CreateRoom(ctx context.Context) (CreateRoomResponse, error) {
	roomId := s.registry.CreateRoom()
	s.logger.InfoContext(ctx, "room created", "room_id", roomId)

	return CreateRoomResponse{RoomId: roomId}, nil
}

type JoinRoomParams struct {
	RoomId   string
	Username string
	Conn     *wsconn.Conn
}

type JoinRoomResponse struct {
	JoinedMember room.Member
	State        room.State
	Conns        []*wsconn.Conn
}

func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	memberId := uuid.NewString()
	state, err := r.Join(memberId, params.Username)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}

	if err := s.connRepo.Add(params.Conn, memberId, params.RoomId); err != nil {
		// roll the membership back, the connection is unusable
		s.registry.Leave(params.RoomId, memberId)
		return JoinRoomResponse{}, fmt.Errorf("failed to register connection: %w", err)
	}

	s.logger.InfoContext(ctx, "member joined", "room_id", params.RoomId, "member_id", memberId)

	return JoinRoomResponse{
		JoinedMember: room.Member{Id: memberId, Username: params.Username},
		State:        state,
		Conns:        s.connsForMembers(state.Members),
	}, nil
}

type DeleteRoomParams struct {
	RoomId string
}

type DeleteRoomResponse struct {
	Conns []*wsconn.Conn
}

// DeleteRoom tears the room down on explicit request. The returned conns
// are the members to notify; their sessions are already unregistered so
// the trailing disconnects are no-ops.
func (s service) DeleteRoom(ctx context.Context, params *DeleteRoomParams) (DeleteRoomResponse, error) {
	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		return DeleteRoomResponse{}, err
	}

	members := r.Members()
	conns := s.connsForMembers(members)

	if err := s.registry.DeleteRoom(params.RoomId); err != nil {
		return DeleteRoomResponse{}, err
	}

	for _, member := range members {
		s.connRepo.RemoveByMemberId(member.Id)
	}

	if err := s.snapshotRepo.Delete(ctx, params.RoomId); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to delete room snapshot", "room_id", params.RoomId, "error", err)
	}

	s.logger.InfoContext(ctx, "room deleted", "room_id", params.RoomId)

	return DeleteRoomResponse{Conns: conns}, nil
}

// GetSyncState answers a unicast sync request with the current
// drift-compensated position.
func (s service) GetSyncState(ctx context.Context, roomId string) (room.SyncState, error) {
	r, err := s.registry.GetRoom(roomId)
	if err != nil {
		return room.SyncState{}, err
	}

	state, ok := r.SyncState()
	if !ok {
		return room.SyncState{}, room.ErrRoomNotFound
	}

	return state, nil
}
