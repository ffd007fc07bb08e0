package robot

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// CountsPerTurn is the encoder resolution of an STS3215 servo.
const CountsPerTurn = 4096

// MotorCalibration maps one joint onto a servo.
type MotorCalibration struct {
	ID           int `json:"id" yaml:"id"`
	DriveMode    int `json:"drive_mode" yaml:"drive_mode"`       // 1 inverts direction
	HomingOffset int `json:"homing_offset" yaml:"homing_offset"` // raw count at 0 degrees
	RangeMin     int `json:"range_min" yaml:"range_min"`
	RangeMax     int `json:"range_max" yaml:"range_max"`
}

// Calibration holds calibration data for all joints.
type Calibration map[JointID]MotorCalibration

// DefaultCalibration assigns servo IDs 1..7 in canonical joint order, centred
// at mid-scale with the full encoder range available.
func DefaultCalibration() Calibration {
	cal := make(Calibration, len(AllJoints()))
	for i, j := range AllJoints() {
		cal[j] = MotorCalibration{
			ID:           i + 1,
			HomingOffset: CountsPerTurn / 2,
			RangeMin:     0,
			RangeMax:     CountsPerTurn - 1,
		}
	}
	return cal
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		j := JointID(name)
		if !j.Valid() {
			return nil, fmt.Errorf("parse calibration JSON: unknown joint %q", name)
		}
		cal[j] = mc
	}
	return cal, nil
}

// ToDegrees converts a raw servo position to a joint angle.
func (c MotorCalibration) ToDegrees(raw int) float64 {
	deg := float64(raw-c.HomingOffset) * 360 / CountsPerTurn
	if c.DriveMode == 1 {
		deg = -deg
	}
	return deg
}

// ToRaw converts a joint angle to a raw servo position, clamped to the
// calibrated range.
func (c MotorCalibration) ToRaw(deg float64) int {
	if c.DriveMode == 1 {
		deg = -deg
	}
	raw := int(math.Round(deg*CountsPerTurn/360)) + c.HomingOffset
	if c.RangeMax > c.RangeMin {
		if raw < c.RangeMin {
			raw = c.RangeMin
		} else if raw > c.RangeMax {
			raw = c.RangeMax
		}
	}
	return raw
}

// MotorIDs returns the servo IDs in canonical joint order.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	for _, j := range AllJoints() {
		if mc, ok := c[j]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns the joint and calibration for a servo ID.
func (c Calibration) ByID(id int) (JointID, MotorCalibration, bool) {
	for j, mc := range c {
		if mc.ID == id {
			return j, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
