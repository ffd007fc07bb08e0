// Package motion composes single-joint animations into the robot's named
// moves.
package motion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/waferbot/pkg/animate"
	"github.com/gwillem/waferbot/pkg/robot"
)

// Controller issues composite moves. Every constituent animation of a move
// is started before the controller waits on any of them.
type Controller struct {
	anim     animate.Animator
	duration time.Duration
	log      *zap.SugaredLogger
}

// NewController creates a controller. A non-positive duration selects
// animate.DefaultDuration.
func NewController(anim animate.Animator, duration time.Duration, log *zap.SugaredLogger) *Controller {
	if duration <= 0 {
		duration = animate.DefaultDuration
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{anim: anim, duration: duration, log: log}
}

// Duration returns the per-move animation time.
func (c *Controller) Duration() time.Duration {
	return c.duration
}

type target struct {
	joint robot.JointID
	angle float64
}

func armTargets(f robot.Finger, angles [3]float64) []target {
	joints := f.ArmJoints()
	return []target{
		{joints[0], angles[0]},
		{joints[1], angles[1]},
		{joints[2], angles[2]},
	}
}

// join starts all targets, then waits for every one of them.
func (c *Controller) join(ctx context.Context, targets []target) error {
	motions := make([]*animate.Motion, len(targets))
	for i, t := range targets {
		motions[i] = c.anim.AnimateTo(t.joint, t.angle, c.duration)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range motions {
		g.Go(func() error {
			if err := m.Wait(ctx); err != nil {
				return fmt.Errorf("%s: %w", m.Joint, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RotateTo turns the base to angle, normalized into [0, 360).
func (c *Controller) RotateTo(ctx context.Context, angle float64) error {
	angle = robot.NormalizeBase(angle)
	c.log.Debugf("rotate base to %.1f", angle)
	if err := c.join(ctx, []target{{robot.Base, angle}}); err != nil {
		return fmt.Errorf("rotate to %.1f: %w", angle, err)
	}
	return nil
}

// ExtendFinger drives the finger's arm to the extended position.
func (c *Controller) ExtendFinger(ctx context.Context, f robot.Finger) error {
	c.log.Debugf("extend %s", f)
	angles := robot.HelperMirrorFor(f).Apply(robot.ExtendedAngles)
	if err := c.join(ctx, armTargets(f, angles)); err != nil {
		return fmt.Errorf("extend %s: %w", f, err)
	}
	return nil
}

// ExtendFingerA extends arm 1.
func (c *Controller) ExtendFingerA(ctx context.Context) error {
	return c.ExtendFinger(ctx, robot.FingerA)
}

// ExtendFingerB extends arm 2.
func (c *Controller) ExtendFingerB(ctx context.Context) error {
	return c.ExtendFinger(ctx, robot.FingerB)
}

func homeTargets() []target {
	a := armTargets(robot.FingerA, robot.HelperMirrorFor(robot.FingerA).Apply(robot.HomeAngles))
	b := armTargets(robot.FingerB, robot.HelperMirrorFor(robot.FingerB).Apply(robot.HomeAngles))
	return append(a, b...)
}

// HomeArms retracts both arms. The base does not move.
func (c *Controller) HomeArms(ctx context.Context) error {
	c.log.Debug("home arms")
	if err := c.join(ctx, homeTargets()); err != nil {
		return fmt.Errorf("home arms: %w", err)
	}
	return nil
}

// HomeAll retracts both arms and returns the base to 0 in one move.
func (c *Controller) HomeAll(ctx context.Context) error {
	c.log.Debug("home all")
	targets := append([]target{{robot.Base, 0}}, homeTargets()...)
	if err := c.join(ctx, targets); err != nil {
		return fmt.Errorf("home all: %w", err)
	}
	return nil
}

// MoveToPose rotates to the finger's base angle of pose and only after the
// base settled moves the finger's three joints.
func (c *Controller) MoveToPose(ctx context.Context, pose robot.PoseData, f robot.Finger) error {
	c.log.Debugf("move %s to pose %q", f, pose.Station)
	if err := c.RotateTo(ctx, pose.BaseAngle(f)); err != nil {
		return fmt.Errorf("move to pose %q: %w", pose.Station, err)
	}
	angles := robot.PoseMirrorFor(f).Apply(pose.ArmTargets(f))
	if err := c.join(ctx, armTargets(f, angles)); err != nil {
		return fmt.Errorf("move to pose %q: %w", pose.Station, err)
	}
	return nil
}

// AnimateArmJointTo moves joint n (1..3) of the finger's arm.
func (c *Controller) AnimateArmJointTo(ctx context.Context, f robot.Finger, n int, deg float64) error {
	if n < 1 || n > 3 {
		return fmt.Errorf("animate %s joint %d: no such joint", f, n)
	}
	sign := robot.HelperMirrorFor(f)[n-1]
	joint := f.ArmJoints()[n-1]
	if err := c.join(ctx, []target{{joint, sign * deg}}); err != nil {
		return fmt.Errorf("animate %s: %w", joint, err)
	}
	return nil
}

// AnimateArmTo moves all three joints of the finger's arm together.
func (c *Controller) AnimateArmTo(ctx context.Context, f robot.Finger, j1, j2, j3 float64) error {
	angles := robot.HelperMirrorFor(f).Apply([3]float64{j1, j2, j3})
	if err := c.join(ctx, armTargets(f, angles)); err != nil {
		return fmt.Errorf("animate %s arm: %w", f, err)
	}
	return nil
}
