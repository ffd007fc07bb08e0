package animate

import (
	"time"

	"github.com/gwillem/waferbot/pkg/robot"
)

// DefaultStep is the simulator tick.
const DefaultStep = 10 * time.Millisecond

// Simulator interpolates joints linearly in software and writes every
// intermediate angle to the pose state.
type Simulator struct {
	state   *robot.PoseState
	step    time.Duration
	tracker Tracker
}

// NewSimulator creates a simulator ticking every step.
func NewSimulator(state *robot.PoseState, step time.Duration) *Simulator {
	if step <= 0 {
		step = DefaultStep
	}
	return &Simulator{state: state, step: step}
}

// AnimateTo starts moving joint from its current angle to target over d.
// A non-positive d applies the target immediately.
func (s *Simulator) AnimateTo(joint robot.JointID, target float64, d time.Duration) *Motion {
	m := NewMotion(joint, target)
	s.tracker.Start(m)

	if d <= 0 {
		s.tracker.Step(m, func() (bool, error) {
			s.state.SetAngle(joint, target)
			return true, nil
		})
		return m
	}

	from := s.state.Angle(joint)
	go s.run(m, from, d)
	return m
}

func (s *Simulator) run(m *Motion, from float64, d time.Duration) {
	start := time.Now()
	t := time.NewTicker(s.step)
	defer t.Stop()

	for range t.C {
		frac := float64(time.Since(start)) / float64(d)
		alive := s.tracker.Step(m, func() (bool, error) {
			if frac >= 1 {
				s.state.SetAngle(m.Joint, m.Target)
				return true, nil
			}
			s.state.SetAngle(m.Joint, from+(m.Target-from)*frac)
			return false, nil
		})
		if !alive {
			return
		}
	}
}

// Moving returns the number of joints with an animation in flight.
func (s *Simulator) Moving() int {
	return s.tracker.Active()
}

// Stop halts every running animation where it is.
func (s *Simulator) Stop() {
	s.tracker.StopAll(ErrStopped)
}
