// Package cell wires the wafer handler together and exposes its command
// surface.
package cell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/animate"
	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/messaging"
	"github.com/gwillem/waferbot/pkg/motion"
	"github.com/gwillem/waferbot/pkg/queue"
	"github.com/gwillem/waferbot/pkg/registry"
	"github.com/gwillem/waferbot/pkg/robot"
	"github.com/gwillem/waferbot/pkg/servo"
	"github.com/gwillem/waferbot/pkg/station"
	"github.com/gwillem/waferbot/pkg/store"
	"github.com/gwillem/waferbot/pkg/transfer"
)

// State is a periodic snapshot for observers.
type State struct {
	Pose      robot.Snapshot `json:"pose"`
	Transfer  transfer.State `json:"transfer"`
	Queued    int            `json:"queued"`
	Busy      bool           `json:"busy"`
	Timestamp time.Time      `json:"timestamp"`
}

// Cell owns every component of one robot.
type Cell struct {
	cfg *robot.Config
	log *zap.SugaredLogger

	bus      *events.Bus
	state    *robot.PoseState
	anim     animate.Animator
	motion   *motion.Controller
	transfer *transfer.Protocol
	poses    store.PoseStore
	signal   station.Signal
	queue    *queue.Queue
	registry *registry.Registry
	exec     *registry.ExecContext

	msg       *messaging.Client
	publisher *messaging.Publisher
	closers   []func() error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// New builds a cell from cfg. Everything not configured runs in simulation.
func New(cfg *robot.Config, log *zap.SugaredLogger) (*Cell, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cell{
		cfg:     cfg,
		log:     log,
		bus:     events.NewBus(),
		ctx:     ctx,
		cancel:  cancel,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
	c.state = robot.NewPoseState(c.bus)

	if err := c.build(); err != nil {
		c.Close()
		return nil, err
	}
	c.bus.Subscribe(c.narrate)
	return c, nil
}

func (c *Cell) build() error {
	if err := c.openAnimator(); err != nil {
		return err
	}
	c.motion = motion.NewController(c.anim, c.cfg.Motion.Duration, c.log.Named("motion"))

	poses, err := store.Open(c.cfg.Store)
	if err != nil {
		return fmt.Errorf("open pose store: %w", err)
	}
	c.poses = poses
	c.closers = append(c.closers, poses.Close)

	if c.cfg.Messaging.Backend != "" {
		c.msg = messaging.NewClient(c.cfg.Messaging, c.log.Named("messaging"))
		if err := c.msg.Connect(); err != nil {
			return fmt.Errorf("connect messaging: %w", err)
		}
		c.publisher = messaging.NewPublisher(c.msg, c.cfg.Messaging.EventTopic, c.bus, c.log.Named("publisher"),
			events.EventHoldingChanged,
			events.EventStationSignalChanged,
			events.EventTransferStateChanged,
			events.EventPoseTaught,
			events.EventQueueActionFailed,
		)
		c.publisher.Start()
	}

	sig, err := c.openSignal()
	if err != nil {
		return err
	}
	c.signal = station.WithEvents(sig, c.bus)

	c.transfer = transfer.New(c.motion, c.state, c.signal,
		transfer.WithStore(c.poses),
		transfer.WithBus(c.bus),
		transfer.WithSignalWait(c.cfg.Transfer.SignalTimeout, c.cfg.Transfer.SignalPoll),
		transfer.WithLogger(c.log.Named("transfer")),
	)

	c.queue = queue.New(c.log.Named("queue"))
	c.queue.OnFault(func(err error) {
		c.bus.Emit(events.Event{
			Type:    events.EventQueueActionFailed,
			Payload: events.QueueActionFailed{Error: err.Error()},
		})
	})

	c.registry = registry.New()
	if err := c.registerCommands(); err != nil {
		return err
	}
	c.exec = &registry.ExecContext{Registry: c.registry, Queue: c.queue, Log: c.log.Named("exec")}
	return nil
}

func (c *Cell) openAnimator() error {
	switch c.cfg.Driver.Kind {
	case "sim", "":
		c.anim = animate.NewSimulator(c.state, c.cfg.Motion.Step)
		return nil
	case "feetech":
		if !c.cfg.Driver.IsCalibrated() {
			return fmt.Errorf("open servos: driver has no calibration, run waferbot scan")
		}
		bus, err := servo.OpenBus(c.cfg.Driver.Port, c.cfg.Driver.BaudRate, c.cfg.Driver.Calibration)
		if err != nil {
			return fmt.Errorf("open servos: %w", err)
		}
		c.closers = append(c.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := bus.Disable(ctx); err != nil {
				c.log.Warnf("disable servos: %v", err)
			}
			return bus.Close()
		})
		a := servo.NewAnimator(bus, c.cfg.Driver.Calibration, c.state, c.cfg.Motion.Step, c.cfg.Driver.Tolerance, c.log.Named("servo"))

		ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
		defer cancel()
		if err := a.Sync(ctx); err != nil {
			return fmt.Errorf("read servos: %w", err)
		}
		if err := bus.Enable(ctx); err != nil {
			return fmt.Errorf("enable servos: %w", err)
		}
		c.anim = a
		return nil
	default:
		return fmt.Errorf("unsupported driver: %s", c.cfg.Driver.Kind)
	}
}

func (c *Cell) openSignal() (station.Signal, error) {
	switch c.cfg.Station.Kind {
	case "sim", "":
		return station.NewSimulated(), nil
	case "mqtt":
		if c.msg == nil || c.msg.Backend() != "mqtt" {
			return nil, fmt.Errorf("station signal over mqtt needs messaging.backend: mqtt")
		}
		return station.NewMQTT(c.msg, c.cfg.Station.MQTT.CommandTopic, c.cfg.Station.MQTT.StateTopic)
	case "modbus":
		m, err := station.DialModbus(c.cfg.Station.Modbus)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, m.Close)
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported station signal: %s", c.cfg.Station.Kind)
	}
}

// Close stops all motion and releases every resource.
func (c *Cell) Close() error {
	c.cancel()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if s, ok := c.anim.(interface{ Stop() }); ok {
		s.Stop()
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	if c.msg != nil {
		c.msg.Close()
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Bus returns the event bus.
func (c *Cell) Bus() *events.Bus { return c.bus }

// Registry returns the command registry.
func (c *Cell) Registry() *registry.Registry { return c.registry }

// Queue returns the action queue.
func (c *Cell) Queue() *queue.Queue { return c.queue }

// Snapshot returns the current pose state.
func (c *Cell) Snapshot() robot.Snapshot { return c.state.Snapshot() }

// Config returns the configuration the cell was built from.
func (c *Cell) Config() *robot.Config { return c.cfg }

// States returns a channel that receives state updates.
func (c *Cell) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Cell) Logs() <-chan string {
	return c.logCh
}

func (c *Cell) logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// narrate turns bus events into operator log lines.
func (c *Cell) narrate(evt events.Event) {
	switch p := evt.Payload.(type) {
	case events.TransferStateChanged:
		if p.Error != "" {
			c.logf("%s Finger%s at %q failed while %s: %s", p.Operation, p.Finger, p.Station, p.From, p.Error)
		} else if p.To == string(transfer.StateDone) {
			c.logf("%s Finger%s at %q done", p.Operation, p.Finger, p.Station)
		}
	case events.HoldingChanged:
		if p.Holding {
			c.logf("Finger%s holds a wafer", p.Finger)
		} else {
			c.logf("Finger%s is empty", p.Finger)
		}
	case events.PoseTaught:
		c.logf("taught Finger%s at %q", p.Finger, p.Station)
	case events.QueueActionFailed:
		c.logf("queued step failed: %s", p.Error)
	}
	if evt.Type == events.EventPanelRequested {
		c.logf("manual panel requested")
	}
}

// Start publishes a State at hz until ctx is cancelled or the cell closes.
func (c *Cell) Start(ctx context.Context, hz int) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if hz <= 0 {
		hz = 30
	}
	c.logf("Cell started (driver %s, store %s, station %s)",
		kindOr(c.cfg.Driver.Kind, "sim"), kindOr(c.cfg.Store.Kind, "sqlite"), kindOr(c.cfg.Station.Kind, "sim"))

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.sendState(c.CurrentState())
		}
	}
}

// CurrentState returns a fresh snapshot of the cell.
func (c *Cell) CurrentState() State {
	return State{
		Pose:      c.state.Snapshot(),
		Transfer:  c.transfer.State(),
		Queued:    c.queue.Len(),
		Busy:      c.queue.Running(),
		Timestamp: time.Now(),
	}
}

func (c *Cell) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Cell) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logf("Cell stopped")
}

func kindOr(kind, def string) string {
	if kind == "" {
		return def
	}
	return kind
}
