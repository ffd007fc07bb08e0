package cell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/registry"
	"github.com/gwillem/waferbot/pkg/robot"
	"github.com/gwillem/waferbot/pkg/store"
	"github.com/gwillem/waferbot/pkg/transfer"
)

func testConfig() *robot.Config {
	cfg := robot.Defaults()
	cfg.Motion.Duration = 20 * time.Millisecond
	cfg.Motion.Step = time.Millisecond
	cfg.Transfer.SignalTimeout = 200 * time.Millisecond
	cfg.Transfer.SignalPoll = 5 * time.Millisecond
	cfg.Store.Kind = "memory"
	return cfg
}

func newTestCell(t *testing.T) *Cell {
	t.Helper()
	c, err := New(testConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func drainLogs(c *Cell) []string {
	var lines []string
	for {
		select {
		case l := <-c.Logs():
			lines = append(lines, l)
		default:
			return lines
		}
	}
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Driver.Kind = "stepper"
	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, "unsupported driver")

	cfg = testConfig()
	cfg.Station.Kind = "mqtt"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "messaging.backend")

	cfg = testConfig()
	cfg.Driver.Kind = "feetech"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "no calibration")
}

func TestCell_TeachThenPickAt(t *testing.T) {
	c := newTestCell(t)
	ctx := context.Background()

	require.NoError(t, c.RotateTo(ctx, 200))
	require.NoError(t, c.ExtendFinger(ctx, robot.FingerA))
	pose, err := c.Teach(ctx, "PM1", robot.FingerA)
	require.NoError(t, err)
	assert.Equal(t, 200.0, pose.J7)

	require.NoError(t, c.HomeAll(ctx))
	require.NoError(t, c.PickAt(ctx, robot.FingerA, "pm1"))

	snap := c.Snapshot()
	assert.True(t, snap.FingerAHolding)
	assert.False(t, snap.FingerBHolding)
	assert.Equal(t, 200.0, snap.Angles[robot.Base])
	assert.Equal(t, robot.HomeAngles[1], snap.Angles[robot.Arm1Joint2])

	err = c.PickAt(ctx, robot.FingerA, "pm1")
	assert.ErrorIs(t, err, transfer.ErrOccupiedEndEffector)

	poses, err := c.Poses(ctx)
	require.NoError(t, err)
	require.Len(t, poses, 1)

	logs := strings.Join(drainLogs(c), "\n")
	assert.Contains(t, logs, `taught FingerA at "PM1"`)
	assert.Contains(t, logs, `pick FingerA at "pm1" done`)
}

func TestCell_RegistryCommands(t *testing.T) {
	c := newTestCell(t)
	ctx := context.Background()

	assert.Equal(t, []string{
		"extend", "home", "home-arms", "locate", "move-arm", "panel", "pick", "place", "rotate", "teach", "wait",
	}, c.Registry().Names())

	require.NoError(t, c.Registry().Run(ctx, "rotate", registry.Args{"angle": "-90"}))
	assert.Equal(t, 270.0, c.Snapshot().Angles[robot.Base])

	require.NoError(t, c.Registry().Run(ctx, "move-arm", registry.Args{"finger": "B", "j1": "10", "j2": "-20", "j3": "30"}))
	snap := c.Snapshot()
	assert.Equal(t, -10.0, snap.Angles[robot.Arm2Joint1])
	assert.Equal(t, -20.0, snap.Angles[robot.Arm2Joint2])
	assert.Equal(t, -30.0, snap.Angles[robot.Arm2Joint3])

	err := c.Registry().Run(ctx, "pick", registry.Args{"finger": "A"})
	assert.ErrorContains(t, err, "station")

	err = c.Registry().Run(ctx, "locate", registry.Args{"station": "nowhere"})
	assert.Error(t, err)
}

func TestCell_PanelRequest(t *testing.T) {
	c := newTestCell(t)
	got := make(chan struct{}, 1)
	c.Bus().SubscribeTypes(func(events.Event) { got <- struct{}{} }, events.EventPanelRequested)

	require.NoError(t, c.Registry().Run(context.Background(), "panel", nil))
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("panel event not emitted")
	}
}

func TestCell_Sequence(t *testing.T) {
	c := newTestCell(t)

	var steps []registry.Step
	for _, s := range []string{"rotate angle=90", "extend finger=B", "wait ms=5", "home-arms"} {
		st, err := registry.ParseStep(s)
		require.NoError(t, err)
		steps = append(steps, st)
	}
	batch, err := c.Sequence(steps...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, batch.Wait(ctx))
	a := c.Snapshot().Angles
	assert.Equal(t, 90.0, a[robot.Base])
	assert.Equal(t, robot.HomeAngles[1], a[robot.Arm2Joint2])

	_, err = c.Sequence(registry.Step{Name: "dance"})
	assert.ErrorIs(t, err, registry.ErrUnknownCommand)

	// locate needs a taught station; the failure is reported, not swallowed
	batch, err = c.Sequence(registry.Step{Name: "locate", Args: registry.Args{"station": "nowhere"}})
	require.NoError(t, err)
	err = batch.Wait(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, batch.Failed())
}

func TestCell_StartPublishesStates(t *testing.T) {
	c := newTestCell(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, 100) }()

	select {
	case s := <-c.States():
		assert.Equal(t, transfer.StateIdle, s.Transfer)
		assert.False(t, s.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no state published")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	assert.Contains(t, strings.Join(drainLogs(c), "\n"), "Cell started")
}
