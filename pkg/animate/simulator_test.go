package animate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/waferbot/pkg/robot"
)

func TestSimulator_ZeroDurationAppliesImmediately(t *testing.T) {
	state := robot.NewPoseState(nil)
	sim := NewSimulator(state, time.Millisecond)

	m := sim.AnimateTo(robot.Arm1Joint2, -150, 0)

	select {
	case <-m.Done():
	default:
		t.Fatal("zero-duration motion should be done on return")
	}
	assert.NoError(t, m.Err())
	assert.Equal(t, -150.0, state.Angle(robot.Arm1Joint2))
	assert.Equal(t, 0, sim.Moving())
}

func TestSimulator_ReachesTarget(t *testing.T) {
	state := robot.NewPoseState(nil)
	sim := NewSimulator(state, time.Millisecond)

	var calls atomic.Int32
	m := sim.AnimateTo(robot.Arm2Joint1, 40, 20*time.Millisecond)
	m.OnComplete(func() { calls.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))

	assert.Equal(t, 40.0, state.Angle(robot.Arm2Joint1))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSimulator_Supersession(t *testing.T) {
	state := robot.NewPoseState(nil)
	sim := NewSimulator(state, time.Millisecond)

	var firstCalls atomic.Int32
	first := sim.AnimateTo(robot.Arm1Joint1, 100, 200*time.Millisecond)
	first.OnComplete(func() { firstCalls.Add(1) })

	time.Sleep(30 * time.Millisecond)
	second := sim.AnimateTo(robot.Arm1Joint1, -20, 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.ErrorIs(t, first.Wait(ctx), ErrSuperseded)
	require.NoError(t, second.Wait(ctx))
	assert.Equal(t, -20.0, state.Angle(robot.Arm1Joint1))

	// the first motion must never report completion
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(0), firstCalls.Load())
	assert.Equal(t, -20.0, state.Angle(robot.Arm1Joint1))
}

func TestSimulator_SupersessionStartsFromCurrentAngle(t *testing.T) {
	state := robot.NewPoseState(nil)
	sim := NewSimulator(state, time.Millisecond)

	sim.AnimateTo(robot.Arm1Joint3, 100, 100*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	second := sim.AnimateTo(robot.Arm1Joint3, 100, time.Second)
	time.Sleep(5 * time.Millisecond)

	// the joint neither jumped back to 0 nor to the target
	a := state.Angle(robot.Arm1Joint3)
	assert.Greater(t, a, 0.0)
	assert.Less(t, a, 100.0)
	sim.Stop()
	assert.ErrorIs(t, second.Wait(context.Background()), ErrStopped)
}

func TestMotion_WaitHonoursContext(t *testing.T) {
	m := NewMotion(robot.Base, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, m.Err(), "pending motion has no error")

	m.Complete(nil)
	m.Complete(ErrSuperseded)
	assert.NoError(t, m.Wait(context.Background()), "only the first Complete counts")
}

func TestTracker_CurrentAndStep(t *testing.T) {
	var tr Tracker
	first := NewMotion(robot.Base, 10)
	tr.Start(first)
	assert.True(t, tr.Current(first))

	second := NewMotion(robot.Base, 20)
	tr.Start(second)
	assert.False(t, tr.Current(first))
	assert.ErrorIs(t, first.Err(), ErrSuperseded)

	called := false
	assert.False(t, tr.Step(first, func() (bool, error) { called = true; return true, nil }))
	assert.False(t, called, "a superseded motion commits nothing")

	assert.True(t, tr.Step(second, func() (bool, error) { return false, nil }))
	assert.False(t, tr.Step(second, func() (bool, error) { return true, nil }))
	assert.False(t, tr.Current(second))
	assert.NoError(t, second.Err())
	assert.Equal(t, 0, tr.Active())
}
