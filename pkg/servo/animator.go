package servo

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/animate"
	"github.com/gwillem/waferbot/pkg/robot"
)

const (
	// DefaultTolerance is how close, in raw counts, a servo must get to its
	// goal before the motion counts as complete.
	DefaultTolerance = 20
	// settleTimeout bounds the wait for a servo after its trajectory ended.
	settleTimeout = 2 * time.Second
	ioTimeout     = 100 * time.Millisecond
)

// Animator streams an interpolated trajectory to the servos and mirrors
// the measured angles into the pose state.
type Animator struct {
	bus       Bus
	cal       robot.Calibration
	state     *robot.PoseState
	step      time.Duration
	tolerance int
	log       *zap.SugaredLogger
	tracker   animate.Tracker
}

// NewAnimator creates an animator over bus. step is the trajectory tick.
func NewAnimator(bus Bus, cal robot.Calibration, state *robot.PoseState, step time.Duration, tolerance int, log *zap.SugaredLogger) *Animator {
	if step <= 0 {
		step = 20 * time.Millisecond
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Animator{
		bus:       bus,
		cal:       cal,
		state:     state,
		step:      step,
		tolerance: tolerance,
		log:       log,
	}
}

// Sync reads every servo and stores the measured angles in the pose state.
func (a *Animator) Sync(ctx context.Context) error {
	raw, err := a.bus.ReadPositions(ctx)
	if err != nil {
		return err
	}
	for id, pos := range raw {
		joint, cal, ok := a.cal.ByID(id)
		if !ok {
			continue
		}
		a.state.SetAngle(joint, cal.ToDegrees(pos))
	}
	return nil
}

// AnimateTo starts moving joint to target over d.
func (a *Animator) AnimateTo(joint robot.JointID, target float64, d time.Duration) *animate.Motion {
	m := animate.NewMotion(joint, target)
	cal, ok := a.cal[joint]
	if !ok {
		m.Complete(errors.Errorf("joint %s is not calibrated", joint))
		return m
	}
	a.tracker.Start(m)
	go a.run(m, cal, a.state.Angle(joint), d)
	return m
}

func (a *Animator) run(m *animate.Motion, cal robot.MotorCalibration, from float64, d time.Duration) {
	start := time.Now()
	goalRaw := cal.ToRaw(m.Target)
	t := time.NewTicker(a.step)
	defer t.Stop()

	for {
		frac := 1.0
		if d > 0 {
			frac = math.Min(1, float64(time.Since(start))/float64(d))
		}
		goal := from + (m.Target-from)*frac

		// Bus I/O happens outside the tracker lock so other joints keep
		// moving; only the state update is committed under it.
		if !a.tracker.Current(m) {
			return
		}
		pos, ioErr := a.exchange(m.Joint, cal, cal.ToRaw(goal))

		alive := a.tracker.Step(m, func() (bool, error) {
			if ioErr != nil {
				return true, ioErr
			}
			if frac < 1 {
				a.state.SetAngle(m.Joint, cal.ToDegrees(pos))
				return false, nil
			}
			if abs(pos-goalRaw) <= a.tolerance {
				a.state.SetAngle(m.Joint, m.Target)
				return true, nil
			}
			a.state.SetAngle(m.Joint, cal.ToDegrees(pos))
			if time.Since(start) > d+settleTimeout {
				return true, errors.Errorf("%s stopped %d counts short of its goal", m.Joint, goalRaw-pos)
			}
			return false, nil
		})
		if !alive {
			if err := m.Err(); err != nil && !errors.Is(err, animate.ErrSuperseded) {
				a.log.Warnf("servo motion %s: %v", m.Joint, err)
			}
			return
		}
		<-t.C
	}
}

// exchange writes one goal and reads back the servo's position.
func (a *Animator) exchange(joint robot.JointID, cal robot.MotorCalibration, raw int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	if err := a.bus.WritePosition(ctx, cal.ID, raw); err != nil {
		return 0, errors.Wrapf(err, "failed to move %s", joint)
	}
	positions, err := a.bus.ReadPositions(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", joint)
	}
	pos, ok := positions[cal.ID]
	if !ok {
		return 0, errors.Errorf("servo %d did not report a position", cal.ID)
	}
	return pos, nil
}

// Stop halts all motions where they are.
func (a *Animator) Stop() {
	a.tracker.StopAll(animate.ErrStopped)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
