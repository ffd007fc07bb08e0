package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/gwillem/waferbot/pkg/robot"
)

const allStationsKey = "waferbot:stations"

func poseKey(station string) string {
	return "waferbot:pose:" + robot.StationKey(station)
}

// Redis stores each pose as JSON under its own key and tracks the station
// keys in a set.
type Redis struct {
	client *redis.Client
}

// NewRedis stores poses as JSON values through client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// FindPose returns the pose of station or ErrNotFound.
func (r *Redis) FindPose(ctx context.Context, station string) (robot.PoseData, error) {
	data, err := r.client.Get(ctx, poseKey(station)).Bytes()
	if err == redis.Nil {
		return robot.PoseData{}, fmt.Errorf("find %q: %w", station, ErrNotFound)
	}
	if err != nil {
		return robot.PoseData{}, fmt.Errorf("find %q: %w", station, err)
	}
	var p robot.PoseData
	if err := json.Unmarshal(data, &p); err != nil {
		return robot.PoseData{}, fmt.Errorf("decode %q: %w", station, err)
	}
	return p, nil
}

// UpsertPose writes p under its station key and adds it to the index.
func (r *Redis) UpsertPose(ctx context.Context, p robot.PoseData) error {
	key := robot.StationKey(p.Station)
	if key == "" {
		return errors.New("upsert pose: empty station")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, poseKey(key), data, 0)
	pipe.SAdd(ctx, allStationsKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %q: %w", p.Station, err)
	}
	return nil
}

// ListPoses returns every indexed pose sorted by station.
func (r *Redis) ListPoses(ctx context.Context) ([]robot.PoseData, error) {
	keys, err := r.client.SMembers(ctx, allStationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list poses: %w", err)
	}
	sort.Strings(keys)

	out := make([]robot.PoseData, 0, len(keys))
	for _, k := range keys {
		p, err := r.FindPose(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
