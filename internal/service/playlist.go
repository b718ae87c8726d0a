package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/pkg/wsconn"
)

type AddTrackParams struct {
	RoomId   string
	SenderId string
	Name     string
	// URL references an external track; Payload is an uploaded one.
	// Exactly one of the two is set.
	URL     string
	Payload []byte
}

type AddTrackResponse struct {
	AddedTrack room.Track
	Index      int
	Playlist   room.PlaylistState
	Conns      []*wsconn.Conn
}

// AddTrack resolves the track's media reference first and only then
// appends it to the playlist, so the media store round-trip never runs
// under the room lock and a resolution failure leaves the playlist
// untouched.
func (s service) AddTrack(ctx context.Context, params *AddTrackParams) (AddTrackResponse, error) {
	uri := params.URL
	stored := false
	if len(params.Payload) > 0 {
		var err error
		uri, err = s.mediaRepo.Store(params.Name, params.Payload)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to store track payload", "room_id", params.RoomId, "error", err)
			return AddTrackResponse{}, fmt.Errorf("%w: %v", ErrMediaResolutionFailed, err)
		}
		stored = true
	}

	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		if stored {
			s.mediaRepo.Release(uri)
		}
		return AddTrackResponse{}, err
	}

	track := room.Track{
		Id:        uuid.NewString(),
		Name:      params.Name,
		URI:       uri,
		AddedById: params.SenderId,
		AddedAt:   time.Now().UTC(),
	}

	index, playlist, err := r.AddTrack(track)
	if err != nil {
		if stored {
			s.mediaRepo.Release(uri)
		}
		return AddTrackResponse{}, fmt.Errorf("failed to add track: %w", err)
	}

	s.logger.InfoContext(ctx, "track added", "room_id", params.RoomId, "track_id", track.Id, "index", index)

	return AddTrackResponse{
		AddedTrack: track,
		Index:      index,
		Playlist:   playlist,
		Conns:      s.connsForMembers(r.Members()),
	}, nil
}

type ReorderPlaylistParams struct {
	RoomId   string
	OldIndex int
	NewIndex int
}

type ReorderPlaylistResponse struct {
	Playlist room.PlaylistState
	Conns    []*wsconn.Conn
}

func (s service) ReorderPlaylist(ctx context.Context, params *ReorderPlaylistParams) (ReorderPlaylistResponse, error) {
	r, err := s.registry.GetRoom(params.RoomId)
	if err != nil {
		return ReorderPlaylistResponse{}, err
	}

	playlist, err := r.Reorder(params.OldIndex, params.NewIndex)
	if err != nil {
		return ReorderPlaylistResponse{}, fmt.Errorf("failed to reorder playlist: %w", err)
	}

	return ReorderPlaylistResponse{
		Playlist: playlist,
		Conns:    s.connsForMembers(r.Members()),
	}, nil
}
