package service

import (
	"context"
	"fmt"

	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

type UpdatePlayerStateParams struct {
	RoomId    string
	IsPlaying bool
	Position  float64
}

type UpdatePlayerStateResponse struct {
	Player room.PlayerState
	Conns  []*wsconn.Conn
}

// UpdatePlayerState applies a play or pause command at the position the
// issuing client reported. The room records its own epoch; the client's
// clock is never trusted beyond this one value.
func (s service) UpdatePlayerState(ctx context.Context, params *UpdatePlayerStateParams) (UpdatePlayerStateResponse, error) {
	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		return UpdatePlayerStateResponse{}, err
	}

	var player room.PlayerState
	if params.IsPlaying {
		player, err = r.SetPlaying(params.Position)
	} else {
		player, err = r.SetPaused(params.Position)
	}
	if err != nil {
		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to update player state: %w", err)
	}

	s.logger.InfoContext(ctx, "player state updated",
		"room_id", params.RoomId, "is_playing", params.IsPlaying, "position", params.Position)

	return UpdatePlayerStateResponse{
		Player: player,
		Conns:  s.connsForMembers(r.Members()),
	}, nil
}

type PlayTrackParams struct {
	RoomId   string
	Index    int
	Position float64
	Autoplay bool
}

type PlayTrackResponse struct {
	Player room.PlayerState
	Conns  []*wsconn.Conn
}

func (s service) PlayTrack(ctx context.Context, params *PlayTrackParams) (PlayTrackResponse, error) {
	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		return PlayTrackResponse{}, err
	}

	player, err := r.SetTrack(params.Index, params.Position, params.Autoplay)
	if err != nil {
		return PlayTrackResponse{}, fmt.Errorf("failed to set track: %w", err)
	}

	s.logger.InfoContext(ctx, "player track updated",
		"room_id", params.RoomId, "index", params.Index, "autoplay", params.Autoplay)

	return PlayTrackResponse{
		Player: player,
		Conns:  s.connsForMembers(r.Members()),
	}, nil
}
