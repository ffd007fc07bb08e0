package motion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/waferbot/pkg/animate"
	"github.com/gwillem/waferbot/pkg/robot"
)

type call struct {
	Joint  robot.JointID
	Target float64
}

// gate records every AnimateTo and holds the motions until released.
type gate struct {
	mu      sync.Mutex
	calls   []call
	pending []*animate.Motion
}

func (g *gate) AnimateTo(j robot.JointID, target float64, _ time.Duration) *animate.Motion {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := animate.NewMotion(j, target)
	g.calls = append(g.calls, call{j, target})
	g.pending = append(g.pending, m)
	return m
}

func (g *gate) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.pending {
		m.Complete(nil)
	}
	g.pending = nil
}

func newSimController(t *testing.T) (*Controller, *robot.PoseState) {
	t.Helper()
	state := robot.NewPoseState(nil)
	sim := animate.NewSimulator(state, time.Millisecond)
	return NewController(sim, 5*time.Millisecond, zaptest.NewLogger(t).Sugar()), state
}

func TestHomeAll(t *testing.T) {
	c, state := newSimController(t)
	state.SetAngle(robot.Base, 123)

	if err := c.HomeAll(context.Background()); err != nil {
		t.Fatalf("HomeAll: %v", err)
	}

	want := map[robot.JointID]float64{
		robot.Base:       0,
		robot.Arm1Joint1: 75,
		robot.Arm1Joint2: -150,
		robot.Arm1Joint3: 75,
		robot.Arm2Joint1: -75,
		robot.Arm2Joint2: -150,
		robot.Arm2Joint3: -75,
	}
	if diff := cmp.Diff(state.Angles(), want); diff != "" {
		t.Errorf("HomeAll angles: got(-)/want(+):\n%s", diff)
	}
}

func TestHomeArmsLeavesBase(t *testing.T) {
	c, state := newSimController(t)
	state.SetAngle(robot.Base, 90)

	if err := c.HomeArms(context.Background()); err != nil {
		t.Fatalf("HomeArms: %v", err)
	}
	if got := state.Angle(robot.Base); got != 90 {
		t.Errorf("base = %v, want 90", got)
	}
	if got := state.Angle(robot.Arm2Joint1); got != -75 {
		t.Errorf("arm2 joint1 = %v, want -75", got)
	}
}

func TestExtendFinger(t *testing.T) {
	tests := []struct {
		finger robot.Finger
		want   []call
	}{
		{robot.FingerA, []call{
			{robot.Arm1Joint1, 130}, {robot.Arm1Joint2, -260}, {robot.Arm1Joint3, 130},
		}},
		{robot.FingerB, []call{
			{robot.Arm2Joint1, -130}, {robot.Arm2Joint2, -260}, {robot.Arm2Joint3, -130},
		}},
	}
	for _, tt := range tests {
		g := &gate{}
		c := NewController(g, time.Millisecond, zaptest.NewLogger(t).Sugar())

		done := make(chan error, 1)
		go func() { done <- c.ExtendFinger(context.Background(), tt.finger) }()

		waitForCalls(t, g, 3)
		select {
		case err := <-done:
			t.Fatalf("ExtendFinger(%s) returned before the join: %v", tt.finger, err)
		case <-time.After(20 * time.Millisecond):
		}
		g.release()
		if err := <-done; err != nil {
			t.Fatalf("ExtendFinger(%s): %v", tt.finger, err)
		}
		if diff := cmp.Diff(g.Calls(), tt.want); diff != "" {
			t.Errorf("ExtendFinger(%s): got(-)/want(+):\n%s", tt.finger, diff)
		}
	}
}

func TestMoveToPose_RotatesBeforeArm(t *testing.T) {
	g := &gate{}
	c := NewController(g, time.Millisecond, zaptest.NewLogger(t).Sugar())
	pose := robot.PoseData{Station: "lp1", J4: 10, J5: -20, J6: 30, J8: 200}

	done := make(chan error, 1)
	go func() { done <- c.MoveToPose(context.Background(), pose, robot.FingerB) }()

	waitForCalls(t, g, 1)
	time.Sleep(20 * time.Millisecond)
	if n := len(g.Calls()); n != 1 {
		t.Fatalf("arm moved before the base settled: %d calls", n)
	}

	g.release()
	waitForCalls(t, g, 4)
	g.release()
	if err := <-done; err != nil {
		t.Fatalf("MoveToPose: %v", err)
	}

	// FingerB replays stored pose values unmirrored.
	want := []call{
		{robot.Base, 200},
		{robot.Arm2Joint1, 10},
		{robot.Arm2Joint2, -20},
		{robot.Arm2Joint3, 30},
	}
	if diff := cmp.Diff(g.Calls(), want); diff != "" {
		t.Errorf("MoveToPose calls: got(-)/want(+):\n%s", diff)
	}
}

func TestMoveToPose_FingerALiteralAngles(t *testing.T) {
	c, state := newSimController(t)
	pose := robot.PoseData{J1: 11, J2: -22, J3: 33, J7: 390}

	if err := c.MoveToPose(context.Background(), pose, robot.FingerA); err != nil {
		t.Fatalf("MoveToPose: %v", err)
	}
	got := []float64{
		state.Angle(robot.Base),
		state.Angle(robot.Arm1Joint1),
		state.Angle(robot.Arm1Joint2),
		state.Angle(robot.Arm1Joint3),
	}
	if diff := cmp.Diff(got, []float64{30, 11, -22, 33}); diff != "" {
		t.Errorf("angles: got(-)/want(+):\n%s", diff)
	}
}

func TestHelpersMirrorFingerB(t *testing.T) {
	c, state := newSimController(t)
	ctx := context.Background()

	if err := c.AnimateArmTo(ctx, robot.FingerB, 10, -20, 30); err != nil {
		t.Fatalf("AnimateArmTo: %v", err)
	}
	got := []float64{
		state.Angle(robot.Arm2Joint1),
		state.Angle(robot.Arm2Joint2),
		state.Angle(robot.Arm2Joint3),
	}
	if diff := cmp.Diff(got, []float64{-10, -20, -30}); diff != "" {
		t.Errorf("AnimateArmTo FingerB: got(-)/want(+):\n%s", diff)
	}

	if err := c.AnimateArmJointTo(ctx, robot.FingerB, 3, 45); err != nil {
		t.Fatalf("AnimateArmJointTo: %v", err)
	}
	if got := state.Angle(robot.Arm2Joint3); got != -45 {
		t.Errorf("arm2 joint3 = %v, want -45", got)
	}
	if err := c.AnimateArmJointTo(ctx, robot.FingerA, 4, 0); err == nil {
		t.Error("AnimateArmJointTo joint 4 should fail")
	}
}

func TestJoinReportsSupersession(t *testing.T) {
	state := robot.NewPoseState(nil)
	sim := animate.NewSimulator(state, time.Millisecond)
	c := NewController(sim, 300*time.Millisecond, zaptest.NewLogger(t).Sugar())

	done := make(chan error, 1)
	go func() { done <- c.HomeArms(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	sim.AnimateTo(robot.Arm1Joint2, 0, 0)

	select {
	case err := <-done:
		if !errors.Is(err, animate.ErrSuperseded) {
			t.Errorf("HomeArms error = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HomeArms hung after a constituent joint was superseded")
	}
}

func waitForCalls(t *testing.T, g *gate, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(g.Calls()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d AnimateTo calls, want %d", len(g.Calls()), n)
		}
		time.Sleep(time.Millisecond)
	}
}
