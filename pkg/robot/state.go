package robot

import (
	"sync"

	"github.com/gwillem/waferbot/pkg/events"
)

// PoseState holds the current joint angles and wafer-presence flags.
//
// Writes publish events on the attached bus after the lock is released.
// PoseState never starts motion on its own.
type PoseState struct {
	mu      sync.RWMutex
	angles  map[JointID]float64
	holding map[Finger]bool
	bus     *events.Bus
}

// NewPoseState returns a state with every joint at 0 and both fingers empty.
// bus may be nil.
func NewPoseState(bus *events.Bus) *PoseState {
	s := &PoseState{
		angles:  make(map[JointID]float64, len(AllJoints())),
		holding: map[Finger]bool{FingerA: false, FingerB: false},
		bus:     bus,
	}
	for _, j := range AllJoints() {
		s.angles[j] = 0
	}
	return s
}

// Angle returns the current angle of a joint in degrees.
func (s *PoseState) Angle(j JointID) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.angles[j]
}

// Angles returns a copy of all joint angles.
func (s *PoseState) Angles() map[JointID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JointID]float64, len(s.angles))
	for j, a := range s.angles {
		out[j] = a
	}
	return out
}

// SetAngle stores a joint angle. Base values are normalized into [0, 360).
func (s *PoseState) SetAngle(j JointID, deg float64) {
	if j == Base {
		deg = NormalizeBase(deg)
	}
	s.mu.Lock()
	s.angles[j] = deg
	s.mu.Unlock()

	s.bus.Emit(events.Event{
		Type:    events.EventJointChanged,
		Payload: events.JointChanged{Joint: string(j), Angle: deg},
	})
}

// Holding reports whether the finger carries a wafer.
func (s *PoseState) Holding(f Finger) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holding[f]
}

// SetHolding updates a finger's wafer flag.
func (s *PoseState) SetHolding(f Finger, holding bool) {
	s.mu.Lock()
	changed := s.holding[f] != holding
	s.holding[f] = holding
	s.mu.Unlock()

	if changed {
		s.bus.Emit(events.Event{
			Type:    events.EventHoldingChanged,
			Payload: events.HoldingChanged{Finger: string(f), Holding: holding},
		})
	}
}

// Snapshot is an immutable copy of the state, suitable for JSON.
type Snapshot struct {
	Angles         map[JointID]float64 `json:"angles"`
	FingerAHolding bool                `json:"finger_a_holding"`
	FingerBHolding bool                `json:"finger_b_holding"`
}

// Snapshot returns a consistent copy of the whole state.
func (s *PoseState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Angles:         make(map[JointID]float64, len(s.angles)),
		FingerAHolding: s.holding[FingerA],
		FingerBHolding: s.holding[FingerB],
	}
	for j, a := range s.angles {
		snap.Angles[j] = a
	}
	return snap
}
