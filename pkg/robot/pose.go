package robot

import "strings"

// PoseData is a named waypoint taught at a station.
//
// J1-J3 are finger A joint targets, J4-J6 finger B joint targets,
// J7 is finger A's base angle and J8 finger B's base angle.
type PoseData struct {
	Station string  `json:"station" yaml:"station"`
	J1      float64 `json:"j1" yaml:"j1"`
	J2      float64 `json:"j2" yaml:"j2"`
	J3      float64 `json:"j3" yaml:"j3"`
	J4      float64 `json:"j4" yaml:"j4"`
	J5      float64 `json:"j5" yaml:"j5"`
	J6      float64 `json:"j6" yaml:"j6"`
	J7      float64 `json:"j7" yaml:"j7"`
	J8      float64 `json:"j8" yaml:"j8"`
}

// BaseAngle returns the base angle the finger uses at this station.
func (p PoseData) BaseAngle(f Finger) float64 {
	if f == FingerB {
		return p.J8
	}
	return p.J7
}

// ArmTargets returns the finger's three joint targets as stored.
func (p PoseData) ArmTargets(f Finger) [3]float64 {
	if f == FingerB {
		return [3]float64{p.J4, p.J5, p.J6}
	}
	return [3]float64{p.J1, p.J2, p.J3}
}

// WithFinger returns a copy with the finger's base and arm values replaced.
func (p PoseData) WithFinger(f Finger, base float64, arm [3]float64) PoseData {
	if f == FingerB {
		p.J4, p.J5, p.J6 = arm[0], arm[1], arm[2]
		p.J8 = base
	} else {
		p.J1, p.J2, p.J3 = arm[0], arm[1], arm[2]
		p.J7 = base
	}
	return p
}

// StationKey is the case-insensitive lookup key of a station name.
func StationKey(station string) string {
	return strings.ToLower(strings.TrimSpace(station))
}
