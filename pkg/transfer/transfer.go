// Package transfer implements the Pick and Place choreography on top of the
// motion controller, plus teaching and locating station poses.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/robot"
	"github.com/gwillem/waferbot/pkg/station"
	"github.com/gwillem/waferbot/pkg/store"
)

var (
	// ErrOccupiedEndEffector rejects a Pick with a finger already holding a wafer.
	ErrOccupiedEndEffector = errors.New("occupied end effector")
	// ErrEmptyEndEffector rejects a Place with a finger holding nothing.
	ErrEmptyEndEffector = errors.New("empty end effector")
	// ErrTimeout is returned when a station signal never reached its value.
	ErrTimeout = errors.New("timeout")
	// ErrNoStore is returned by the by-name operations without a pose store.
	ErrNoStore = errors.New("no pose store configured")
)

// State is a step of a Pick or Place.
type State string

// Transfer steps in the order a successful Pick or Place visits them.
// StateFailed replaces whatever step was running when an error occurred.
const (
	StateIdle                    State = "idle"
	StateRotatingToStation       State = "rotating_to_station"
	StateExtending               State = "extending"
	StateWaitingForStationSignal State = "waiting_for_station_signal"
	StateRetracting              State = "retracting"
	StateDone                    State = "done"
	StateFailed                  State = "failed"
)

// Mover is the part of the motion controller a transfer drives.
type Mover interface {
	RotateTo(ctx context.Context, angle float64) error
	ExtendFinger(ctx context.Context, f robot.Finger) error
	HomeArms(ctx context.Context) error
	MoveToPose(ctx context.Context, pose robot.PoseData, f robot.Finger) error
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithStore attaches the pose store used by PickAt, PlaceAt, Teach and Locate.
func WithStore(s store.PoseStore) Option {
	return func(p *Protocol) { p.poses = s }
}

// WithBus publishes state transitions on bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Protocol) { p.bus = bus }
}

// WithSignalWait sets the station signal timeout and poll interval.
func WithSignalWait(timeout, poll time.Duration) Option {
	return func(p *Protocol) {
		if timeout > 0 {
			p.timeout = timeout
		}
		if poll > 0 {
			p.poll = poll
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Protocol) { p.log = log }
}

// Protocol runs one transfer at a time.
type Protocol struct {
	mover  Mover
	state  *robot.PoseState
	signal station.Signal
	poses  store.PoseStore
	bus    *events.Bus
	log    *zap.SugaredLogger

	timeout time.Duration
	poll    time.Duration

	opMu    sync.Mutex // held for a whole transfer
	mu      sync.Mutex
	current State
}

// New creates a protocol. The signal wait defaults to 5s polled every 50ms.
func New(mover Mover, state *robot.PoseState, signal station.Signal, opts ...Option) *Protocol {
	p := &Protocol{
		mover:   mover,
		state:   state,
		signal:  signal,
		timeout: 5 * time.Second,
		poll:    DefaultPoll,
		current: StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	return p
}

// State returns the step the most recent transfer is in, or ended in.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Pick collects a wafer from the station at pose with finger f.
func (p *Protocol) Pick(ctx context.Context, f robot.Finger, pose robot.PoseData) error {
	return p.pick(ctx, f, pose, pose.Station)
}

// Place hands finger f's wafer to the station at pose.
func (p *Protocol) Place(ctx context.Context, f robot.Finger, pose robot.PoseData) error {
	return p.place(ctx, f, pose, pose.Station)
}

// pick reports the transfer under stationName, the caller's spelling.
// The precondition is checked before waiting on opMu and again under it.
func (p *Protocol) pick(ctx context.Context, f robot.Finger, pose robot.PoseData, stationName string) error {
	if p.state.Holding(f) {
		return fmt.Errorf("pick %s: %w", f, ErrOccupiedEndEffector)
	}
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.state.Holding(f) {
		return fmt.Errorf("pick %s: %w", f, ErrOccupiedEndEffector)
	}
	op := p.begin("pick", f, stationName)
	if err := p.run(ctx, op, pose, true); err != nil {
		return fmt.Errorf("pick %s: %w", f, err)
	}
	p.state.SetHolding(f, true)
	op.enter(StateDone, nil)
	return nil
}

func (p *Protocol) place(ctx context.Context, f robot.Finger, pose robot.PoseData, stationName string) error {
	if !p.state.Holding(f) {
		return fmt.Errorf("place %s: %w", f, ErrEmptyEndEffector)
	}
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if !p.state.Holding(f) {
		return fmt.Errorf("place %s: %w", f, ErrEmptyEndEffector)
	}
	op := p.begin("place", f, stationName)
	if err := p.run(ctx, op, pose, false); err != nil {
		return fmt.Errorf("place %s: %w", f, err)
	}
	p.state.SetHolding(f, false)
	op.enter(StateDone, nil)
	return nil
}

// run performs the motion common to Pick and Place. Nothing is undone when
// a step fails.
func (p *Protocol) run(ctx context.Context, op *operation, pose robot.PoseData, present bool) error {
	op.enter(StateRotatingToStation, nil)
	if err := p.mover.RotateTo(ctx, pose.BaseAngle(op.finger)); err != nil {
		return op.fail(err)
	}

	op.enter(StateExtending, nil)
	if err := p.mover.ExtendFinger(ctx, op.finger); err != nil {
		return op.fail(err)
	}

	op.enter(StateWaitingForStationSignal, nil)
	if err := p.signal.Set(present); err != nil {
		return op.fail(fmt.Errorf("set station signal: %w", err))
	}
	err := WaitUntil(ctx, func() bool {
		v, err := p.signal.Present()
		if err != nil {
			p.log.Warnf("read station signal: %v", err)
			return false
		}
		return v == present
	}, p.timeout, p.poll)
	if err != nil {
		return op.fail(fmt.Errorf("wait for station signal: %w", err))
	}

	op.enter(StateRetracting, nil)
	if err := p.mover.HomeArms(ctx); err != nil {
		return op.fail(err)
	}
	return nil
}

// PickAt picks from the station's stored pose.
func (p *Protocol) PickAt(ctx context.Context, f robot.Finger, stationName string) error {
	pose, err := p.findPose(ctx, stationName)
	if err != nil {
		return fmt.Errorf("pick %s: %w", f, err)
	}
	return p.pick(ctx, f, pose, stationName)
}

// PlaceAt places at the station's stored pose.
func (p *Protocol) PlaceAt(ctx context.Context, f robot.Finger, stationName string) error {
	pose, err := p.findPose(ctx, stationName)
	if err != nil {
		return fmt.Errorf("place %s: %w", f, err)
	}
	return p.place(ctx, f, pose, stationName)
}

// Teach records the current base and arm angles of finger f as the
// station's pose. The other finger's values already on record are kept.
func (p *Protocol) Teach(ctx context.Context, stationName string, f robot.Finger) (robot.PoseData, error) {
	if p.poses == nil {
		return robot.PoseData{}, fmt.Errorf("teach %q: %w", stationName, ErrNoStore)
	}
	existing, err := p.poses.FindPose(ctx, stationName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return robot.PoseData{}, fmt.Errorf("teach %q: %w", stationName, err)
	}

	angles := p.state.Angles()
	joints := f.ArmJoints()
	arm := [3]float64{angles[joints[0]], angles[joints[1]], angles[joints[2]]}
	pose := existing.WithFinger(f, angles[robot.Base], arm)
	pose.Station = stationName

	if err := p.poses.UpsertPose(ctx, pose); err != nil {
		return robot.PoseData{}, fmt.Errorf("teach %q: %w", stationName, err)
	}
	p.log.Infof("taught %s at %q", f, stationName)
	p.bus.Emit(events.Event{
		Type:    events.EventPoseTaught,
		Payload: events.PoseTaught{Station: stationName, Finger: string(f)},
	})
	return pose, nil
}

// Locate moves finger f to the station's stored pose.
func (p *Protocol) Locate(ctx context.Context, stationName string, f robot.Finger) error {
	pose, err := p.findPose(ctx, stationName)
	if err != nil {
		return fmt.Errorf("locate %q: %w", stationName, err)
	}
	return p.mover.MoveToPose(ctx, pose, f)
}

func (p *Protocol) findPose(ctx context.Context, stationName string) (robot.PoseData, error) {
	if p.poses == nil {
		return robot.PoseData{}, ErrNoStore
	}
	return p.poses.FindPose(ctx, stationName)
}

// operation tracks one Pick or Place for event reporting.
type operation struct {
	p       *Protocol
	id      string
	kind    string
	finger  robot.Finger
	station string
}

func (p *Protocol) begin(kind string, f robot.Finger, stationName string) *operation {
	op := &operation{
		p:       p,
		id:      uuid.NewString(),
		kind:    kind,
		finger:  f,
		station: stationName,
	}
	p.log.Infof("%s %s at %q (op %s)", kind, f, stationName, op.id)
	op.enter(StateIdle, nil)
	return op
}

func (op *operation) enter(s State, cause error) {
	op.p.mu.Lock()
	from := op.p.current
	op.p.current = s
	op.p.mu.Unlock()

	payload := events.TransferStateChanged{
		OperationID: op.id,
		Operation:   op.kind,
		Finger:      string(op.finger),
		Station:     op.station,
		From:        string(from),
		To:          string(s),
	}
	if cause != nil {
		payload.Error = cause.Error()
	}
	op.p.bus.Emit(events.Event{Type: events.EventTransferStateChanged, Payload: payload})
}

func (op *operation) fail(err error) error {
	if errors.Is(err, ErrTimeout) {
		op.p.log.Warnf("%s %s op %s: %v", op.kind, op.finger, op.id, err)
	} else {
		op.p.log.Errorf("%s %s op %s: %v", op.kind, op.finger, op.id, err)
	}
	op.enter(StateFailed, err)
	return err
}
