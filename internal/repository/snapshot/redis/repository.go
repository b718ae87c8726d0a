package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tunesync/server/internal/repository/snapshot"
)

type repo struct {
	rc         *redis.Client
	expiration time.Duration
}

func NewRepo(rc *redis.Client, expiration time.Duration) *repo {
	return &repo{
		rc:         rc,
		expiration: expiration,
	}
}

func (r repo) getSnapshotKey(roomId string) string {
	return "room:" + roomId + ":snapshot"
}

func (r repo) Save(ctx context.Context, record *snapshot.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.rc.Set(ctx, r.getSnapshotKey(record.Id), data, r.expiration).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

func (r repo) Get(ctx context.Context, roomId string) (snapshot.Record, error) {
	data, err := r.rc.Get(ctx, r.getSnapshotKey(roomId)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return snapshot.Record{}, snapshot.ErrNotFound
		}
		return snapshot.Record{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var record snapshot.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return snapshot.Record{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return record, nil
}

func (r repo) GetAll(ctx context.Context) ([]snapshot.Record, error) {
	var records []snapshot.Record

	iter := r.rc.Scan(ctx, 0, r.getSnapshotKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.rc.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to get snapshot: %w", err)
		}

		var record snapshot.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}

		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}

	return records, nil
}

func (r repo) Delete(ctx context.Context, roomId string) error {
	res, err := r.rc.Del(ctx, r.getSnapshotKey(roomId)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	if res == 0 {
		return snapshot.ErrNotFound
	}

	return nil
}
