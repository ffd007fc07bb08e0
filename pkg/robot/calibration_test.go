package robot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMotorCalibration_ToDegrees(t *testing.T) {
	cal := MotorCalibration{HomingOffset: 2048}

	tests := []struct {
		raw      int
		expected float64
	}{
		{2048, 0},    // homing offset -> 0
		{3072, 90},   // quarter turn
		{1024, -90},  // quarter turn back
		{4096, 180},  // half turn
		{2560, 45.0}, // eighth turn
	}

	for _, tt := range tests {
		got := cal.ToDegrees(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("ToDegrees(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestMotorCalibration_ToRaw(t *testing.T) {
	cal := MotorCalibration{
		HomingOffset: 2048,
		RangeMin:     1000,
		RangeMax:     3500,
	}

	tests := []struct {
		deg      float64
		expected int
	}{
		{0, 2048},
		{90, 3072},
		{-45, 1536},
		{180, 3500},  // clamped to max
		{-180, 1000}, // clamped to min
	}

	for _, tt := range tests {
		got := cal.ToRaw(tt.deg)
		if got != tt.expected {
			t.Errorf("ToRaw(%f) = %d, want %d", tt.deg, got, tt.expected)
		}
	}
}

func TestMotorCalibration_DriveModeInverts(t *testing.T) {
	cal := MotorCalibration{HomingOffset: 2048, DriveMode: 1}

	if got := cal.ToRaw(90); got != 1024 {
		t.Errorf("ToRaw(90) inverted = %d, want 1024", got)
	}
	if got := cal.ToDegrees(1024); math.Abs(got-90) > 0.001 {
		t.Errorf("ToDegrees(1024) inverted = %f, want 90", got)
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cal := MotorCalibration{
		HomingOffset: 1900,
		RangeMin:     823,
		RangeMax:     3540,
	}

	// Test round-trip: raw -> degrees -> raw
	for raw := cal.RangeMin; raw <= cal.RangeMax; raw += 100 {
		deg := cal.ToDegrees(raw)
		back := cal.ToRaw(deg)
		if math.Abs(float64(back-raw)) > 1 {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, deg, back)
		}
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := DefaultCalibration()

	ids := cal.MotorIDs()
	expected := []int{1, 2, 3, 4, 5, 6, 7}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		Base:       MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 200},
		Arm2Joint3: MotorCalibration{ID: 7, RangeMin: 300, RangeMax: 400},
	}

	// Test finding existing ID
	name, mc, ok := cal.ByID(7)
	if !ok {
		t.Fatal("ByID(7) returned false")
	}
	if name != Arm2Joint3 {
		t.Errorf("ByID(7) returned name %s, want arm2_joint3", name)
	}
	if mc.RangeMin != 300 {
		t.Errorf("ByID(7) returned wrong calibration: %+v", mc)
	}

	// Test non-existing ID
	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"base":{"id":3,"homing_offset":2000}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cal, err := LoadCalibration(good)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if cal[Base].ID != 3 || cal[Base].HomingOffset != 2000 {
		t.Errorf("LoadCalibration base = %+v", cal[Base])
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"wrist_roll":{"id":5}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(bad); err == nil {
		t.Error("LoadCalibration should reject unknown joints")
	}
}
