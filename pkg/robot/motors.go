// Package robot provides the data model of the dual-arm wafer handler.
package robot

import (
	"fmt"
	"math"
	"strings"
)

// JointID identifies a rotational joint of the robot.
type JointID string

// Joint names. The base is shared by both arms.
const (
	Base       JointID = "base"
	Arm1Joint1 JointID = "arm1_joint1"
	Arm1Joint2 JointID = "arm1_joint2"
	Arm1Joint3 JointID = "arm1_joint3"
	Arm2Joint1 JointID = "arm2_joint1"
	Arm2Joint2 JointID = "arm2_joint2"
	Arm2Joint3 JointID = "arm2_joint3"
)

// AllJoints returns all joint IDs in canonical order (base first, then arm 1, then arm 2).
func AllJoints() []JointID {
	return []JointID{
		Base,
		Arm1Joint1,
		Arm1Joint2,
		Arm1Joint3,
		Arm2Joint1,
		Arm2Joint2,
		Arm2Joint3,
	}
}

// Valid reports whether j is one of the seven known joints.
func (j JointID) Valid() bool {
	for _, k := range AllJoints() {
		if j == k {
			return true
		}
	}
	return false
}

// Finger identifies one of the two end-effectors.
type Finger string

const (
	// FingerA sits on arm 1 (left). It is never mirrored.
	FingerA Finger = "A"
	// FingerB sits on arm 2 (right).
	FingerB Finger = "B"
)

// ParseFinger accepts "A", "B", "FingerA" or "FingerB" in any case.
func ParseFinger(s string) (Finger, error) {
	switch strings.ToUpper(strings.TrimPrefix(strings.ToLower(s), "finger")) {
	case "A":
		return FingerA, nil
	case "B":
		return FingerB, nil
	}
	return "", fmt.Errorf("unknown finger %q", s)
}

// String returns "A" or "B".
func (f Finger) String() string {
	return "Finger" + string(f)
}

// ArmJoints returns the three joints of the finger's arm, shoulder first.
func (f Finger) ArmJoints() [3]JointID {
	if f == FingerB {
		return [3]JointID{Arm2Joint1, Arm2Joint2, Arm2Joint3}
	}
	return [3]JointID{Arm1Joint1, Arm1Joint2, Arm1Joint3}
}

// Other returns the opposite finger.
func (f Finger) Other() Finger {
	if f == FingerA {
		return FingerB
	}
	return FingerA
}

// Canonical arm angles in degrees, before mirroring.
var (
	HomeAngles     = [3]float64{75, -150, 75}
	ExtendedAngles = [3]float64{130, -260, 130}
)

// Mirror holds the sign applied to joints 1..3 of an arm.
type Mirror [3]float64

// Apply returns the mirrored targets.
func (m Mirror) Apply(v [3]float64) [3]float64 {
	return [3]float64{m[0] * v[0], m[1] * v[1], m[2] * v[2]}
}

// Sign conventions for arm 2. The helper and pose paths disagree and are kept
// separate until the product owner settles which one is correct.
var (
	// NoMirror is used for FingerA on every path.
	NoMirror = Mirror{1, 1, 1}
	// HelperMirror negates joints 1 and 3 of FingerB. Used by extend, home
	// and the single-joint helpers.
	HelperMirror = Mirror{-1, 1, -1}
	// PoseMirror is applied to FingerB by MoveToPose. Taught values are
	// stored as raw joint angles, so they are replayed unchanged.
	PoseMirror = Mirror{1, 1, 1}
)

// HelperMirrorFor returns the helper-path convention for f.
func HelperMirrorFor(f Finger) Mirror {
	if f == FingerB {
		return HelperMirror
	}
	return NoMirror
}

// PoseMirrorFor returns the MoveToPose convention for f.
func PoseMirrorFor(f Finger) Mirror {
	if f == FingerB {
		return PoseMirror
	}
	return NoMirror
}

// NormalizeBase maps an angle into [0, 360).
func NormalizeBase(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}
