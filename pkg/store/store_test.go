package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwillem/waferbot/pkg/robot"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *SQLite {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func testStores(t *testing.T) map[string]PoseStore {
	return map[string]PoseStore{
		"sqlite": testDB(t),
		"memory": NewMemory(),
	}
}

func TestPoseStore_UpsertIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.UpsertPose(ctx, robot.PoseData{Station: "LoadPort1", J1: 1, J7: 90}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := s.UpsertPose(ctx, robot.PoseData{Station: "loadport1", J1: 2, J7: 180}); err != nil {
				t.Fatalf("upsert again: %v", err)
			}

			got, err := s.FindPose(ctx, "LOADPORT1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.J1 != 2 || got.J7 != 180 {
				t.Errorf("find = %+v, want J1=2 J7=180", got)
			}

			all, err := s.ListPoses(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 1 {
				t.Errorf("list returned %d poses, want 1", len(all))
			}
		})
	}
}

func TestPoseStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindPose(ctx, "nowhere")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("find error = %v, want ErrNotFound", err)
			}
			if err := s.UpsertPose(ctx, robot.PoseData{Station: "  "}); err == nil {
				t.Error("upsert with empty station should fail")
			}
		})
	}
}

func TestPoseStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, st := range []string{"pm2", "aligner", "PM1"} {
				if err := s.UpsertPose(ctx, robot.PoseData{Station: st}); err != nil {
					t.Fatalf("upsert %s: %v", st, err)
				}
			}
			all, err := s.ListPoses(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var names []string
			for _, p := range all {
				names = append(names, robot.StationKey(p.Station))
			}
			want := []string{"aligner", "pm1", "pm2"}
			if len(names) != len(want) {
				t.Fatalf("list = %v, want %v", names, want)
			}
			for i := range want {
				if names[i] != want[i] {
					t.Errorf("list[%d] = %q, want %q", i, names[i], want[i])
				}
			}
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(robot.StoreConfig{Kind: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	s.Close()

	if _, err := Open(robot.StoreConfig{Kind: "postgres"}); err == nil {
		t.Error("open postgres should fail")
	}
}
