package service

import (
	"context"
	"fmt"

	"github.com/tunesync/server/internal/repository/snapshot"
	"github.com/tunesync/server/internal/room"
)

// RestoreRooms rebuilds rooms from the snapshot store at startup.
// Restored rooms come back paused and without members; tracks whose
// media reference no longer resolves are dropped by the registry.
func (s service) RestoreRooms(ctx context.Context) error {
	records, err := s.snapshotRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}

	snapshots := make([]room.Snapshot, 0, len(records))
	for _, record := range records {
		snapshots = append(snapshots, recordToSnapshot(record))
	}

	// references are taken per installed track; skipped snapshots and
	// dropped tracks never hold one
	s.registry.Restore(snapshots, func(uri string) bool {
		if !s.mediaRepo.Resolve(uri) {
			return false
		}
		s.mediaRepo.Acquire(uri)

		return true
	})

	s.logger.InfoContext(ctx, "rooms restored", "count", len(snapshots))

	return nil
}

// FlushSnapshots persists every live room and shuts the registry down.
// Called once during graceful shutdown.
func (s service) FlushSnapshots(ctx context.Context) error {
	snapshots := s.registry.Shutdown()

	for _, snap := range snapshots {
		record := snapshotToRecord(snap)
		if err := s.snapshotRepo.Save(ctx, &record); err != nil {
			s.logger.ErrorContext(ctx, "failed to save snapshot", "room_id", snap.Id, "error", err)
			continue
		}
	}

	s.logger.InfoContext(ctx, "snapshots flushed", "count", len(snapshots))

	return nil
}

func snapshotToRecord(snap room.Snapshot) snapshot.Record {
	tracks := make([]snapshot.TrackRecord, 0, len(snap.Tracks))
	for _, track := range snap.Tracks {
		tracks = append(tracks, snapshot.TrackRecord{
			Id:        track.Id,
			Name:      track.Name,
			URI:       track.URI,
			AddedById: track.AddedById,
			AddedAt:   track.AddedAt,
		})
	}

	return snapshot.Record{
		Id:           snap.Id,
		Tracks:       tracks,
		CurrentIndex: snap.CurrentIndex,
		IsPlaying:    snap.IsPlaying,
		Position:     snap.Position,
	}
}

func recordToSnapshot(record snapshot.Record) room.Snapshot {
	tracks := make([]room.Track, 0, len(record.Tracks))
	for _, track := range record.Tracks {
		tracks = append(tracks, room.Track{
			Id:        track.Id,
			Name:      track.Name,
			URI:       track.URI,
			AddedById: track.AddedById,
			AddedAt:   track.AddedAt,
		})
	}

	return room.Snapshot{
		Id:           record.Id,
		Tracks:       tracks,
		CurrentIndex: record.CurrentIndex,
		IsPlaying:    record.IsPlaying,
		Position:     record.Position,
	}
}
