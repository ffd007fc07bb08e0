// Package store persists taught station poses.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gwillem/waferbot/pkg/robot"
)

// ErrNotFound is returned by FindPose when no pose exists for a station.
var ErrNotFound = errors.New("pose not found")

// PoseStore looks poses up by station name, ignoring case.
type PoseStore interface {
	FindPose(ctx context.Context, station string) (robot.PoseData, error)
	UpsertPose(ctx context.Context, pose robot.PoseData) error
	ListPoses(ctx context.Context) ([]robot.PoseData, error)
	Close() error
}

// Open returns the store selected by cfg.
func Open(cfg robot.StoreConfig) (PoseStore, error) {
	switch cfg.Kind {
	case "sqlite", "":
		return OpenSQLite(cfg.SQLite.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedis(client), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Kind)
	}
}

// Memory keeps poses in a map. It is used by tests and dry runs.
type Memory struct {
	mu    sync.RWMutex
	poses map[string]robot.PoseData
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{poses: make(map[string]robot.PoseData)}
}

// FindPose returns the pose of station, matched case-insensitively.
func (m *Memory) FindPose(_ context.Context, station string) (robot.PoseData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.poses[robot.StationKey(station)]
	if !ok {
		return robot.PoseData{}, fmt.Errorf("find %q: %w", station, ErrNotFound)
	}
	return p, nil
}

// UpsertPose stores pose, replacing any pose of the same station.
func (m *Memory) UpsertPose(_ context.Context, pose robot.PoseData) error {
	key := robot.StationKey(pose.Station)
	if key == "" {
		return errors.New("upsert pose: empty station")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses[key] = pose
	return nil
}

// ListPoses returns every pose sorted by station.
func (m *Memory) ListPoses(_ context.Context) ([]robot.PoseData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]robot.PoseData, 0, len(m.poses))
	for _, p := range m.poses {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return robot.StationKey(out[i].Station) < robot.StationKey(out[j].Station)
	})
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
