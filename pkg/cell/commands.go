package cell

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/registry"
	"github.com/gwillem/waferbot/pkg/robot"
)

// RotateTo turns the base to angle degrees.
func (c *Cell) RotateTo(ctx context.Context, angle float64) error {
	return c.motion.RotateTo(ctx, angle)
}

// ExtendFinger pushes end-effector f out to the extended angles.
func (c *Cell) ExtendFinger(ctx context.Context, f robot.Finger) error {
	return c.motion.ExtendFinger(ctx, f)
}

// HomeAll returns the base and both arms to home.
func (c *Cell) HomeAll(ctx context.Context) error {
	return c.motion.HomeAll(ctx)
}

// HomeArms retracts both arms without moving the base.
func (c *Cell) HomeArms(ctx context.Context) error {
	return c.motion.HomeArms(ctx)
}

// MoveToPose replays a stored pose with end-effector f.
func (c *Cell) MoveToPose(ctx context.Context, pose robot.PoseData, f robot.Finger) error {
	return c.motion.MoveToPose(ctx, pose, f)
}

// Pick takes a wafer from the station at pose with f.
func (c *Cell) Pick(ctx context.Context, f robot.Finger, pose robot.PoseData) error {
	return c.transfer.Pick(ctx, f, pose)
}

// Place leaves the wafer held by f at the station at pose.
func (c *Cell) Place(ctx context.Context, f robot.Finger, pose robot.PoseData) error {
	return c.transfer.Place(ctx, f, pose)
}

// PickAt picks from a station by name.
func (c *Cell) PickAt(ctx context.Context, f robot.Finger, station string) error {
	return c.transfer.PickAt(ctx, f, station)
}

// PlaceAt places at a station by name.
func (c *Cell) PlaceAt(ctx context.Context, f robot.Finger, station string) error {
	return c.transfer.PlaceAt(ctx, f, station)
}

// Teach stores the current arm angles of f as the pose of station.
func (c *Cell) Teach(ctx context.Context, station string, f robot.Finger) (robot.PoseData, error) {
	return c.transfer.Teach(ctx, station, f)
}

// Locate moves f to the stored pose of station.
func (c *Cell) Locate(ctx context.Context, station string, f robot.Finger) error {
	return c.transfer.Locate(ctx, station, f)
}

// Poses lists every taught station.
func (c *Cell) Poses(ctx context.Context) ([]robot.PoseData, error) {
	return c.poses.ListPoses(ctx)
}

// FindPose returns the taught pose of station.
func (c *Cell) FindPose(ctx context.Context, station string) (robot.PoseData, error) {
	return c.poses.FindPose(ctx, station)
}

// SavePose stores pose as given.
func (c *Cell) SavePose(ctx context.Context, pose robot.PoseData) error {
	return c.poses.UpsertPose(ctx, pose)
}

// RequestPanel asks operator surfaces to show the manual jog panel.
func (c *Cell) RequestPanel() {
	c.bus.Emit(events.Event{Type: events.EventPanelRequested})
}

// Sequence queues steps to run one after another. It returns once they are
// queued; steps outlive the caller and stop when the cell closes. The batch
// reports which steps failed.
func (c *Cell) Sequence(steps ...registry.Step) (*registry.Batch, error) {
	return c.exec.Enqueue(c.ctx, steps...)
}

func (c *Cell) registerCommands() error {
	cmds := []registry.Command{
		{
			Name:  "rotate",
			Usage: "rotate angle=<deg>",
			Run: func(ctx context.Context, a registry.Args) error {
				angle, err := a.Float("angle")
				if err != nil {
					return err
				}
				return c.RotateTo(ctx, angle)
			},
		},
		{
			Name:  "extend",
			Usage: "extend finger=<A|B>",
			Run: func(ctx context.Context, a registry.Args) error {
				f, err := a.Finger("finger")
				if err != nil {
					return err
				}
				return c.ExtendFinger(ctx, f)
			},
		},
		{
			Name:  "home",
			Usage: "home",
			Run: func(ctx context.Context, _ registry.Args) error {
				return c.HomeAll(ctx)
			},
		},
		{
			Name:  "home-arms",
			Usage: "home-arms",
			Run: func(ctx context.Context, _ registry.Args) error {
				return c.HomeArms(ctx)
			},
		},
		{
			Name:  "pick",
			Usage: "pick station=<name> finger=<A|B>",
			Run:   c.stationCommand(c.PickAt),
		},
		{
			Name:  "place",
			Usage: "place station=<name> finger=<A|B>",
			Run:   c.stationCommand(c.PlaceAt),
		},
		{
			Name:  "locate",
			Usage: "locate station=<name> finger=<A|B>",
			Run: c.stationCommand(func(ctx context.Context, f robot.Finger, station string) error {
				return c.Locate(ctx, station, f)
			}),
		},
		{
			Name:  "teach",
			Usage: "teach station=<name> finger=<A|B>",
			Run: c.stationCommand(func(ctx context.Context, f robot.Finger, station string) error {
				_, err := c.Teach(ctx, station, f)
				return err
			}),
		},
		{
			Name:  "move-arm",
			Usage: "move-arm finger=<A|B> j1=<deg> j2=<deg> j3=<deg>",
			Run: func(ctx context.Context, a registry.Args) error {
				f, err := a.Finger("finger")
				if err != nil {
					return err
				}
				var j [3]float64
				for i, key := range []string{"j1", "j2", "j3"} {
					if j[i], err = a.Float(key); err != nil {
						return err
					}
				}
				return c.motion.AnimateArmTo(ctx, f, j[0], j[1], j[2])
			},
		},
		{
			Name:  "panel",
			Usage: "panel",
			Run: func(context.Context, registry.Args) error {
				c.RequestPanel()
				return nil
			},
		},
		{
			Name:  "wait",
			Usage: "wait ms=<milliseconds>",
			Run: func(ctx context.Context, a registry.Args) error {
				ms, err := a.Float("ms")
				if err != nil {
					return err
				}
				select {
				case <-time.After(time.Duration(ms * float64(time.Millisecond))):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	}
	for _, cmd := range cmds {
		if err := c.registry.Register(cmd); err != nil {
			return fmt.Errorf("register commands: %w", err)
		}
	}
	return nil
}

func (c *Cell) stationCommand(fn func(context.Context, robot.Finger, string) error) func(context.Context, registry.Args) error {
	return func(ctx context.Context, a registry.Args) error {
		station, err := a.Required("station")
		if err != nil {
			return err
		}
		f, err := a.Finger("finger")
		if err != nil {
			return err
		}
		return fn(ctx, f, station)
	}
}

// JogArmJoint moves joint n (1-3) of end-effector f by delta degrees in
// the arm's own frame.
func (c *Cell) JogArmJoint(ctx context.Context, f robot.Finger, n int, delta float64) error {
	if n < 1 || n > 3 {
		return fmt.Errorf("jog joint %d: must be 1, 2 or 3", n)
	}
	joint := f.ArmJoints()[n-1]
	current := robot.HelperMirrorFor(f)[n-1] * c.state.Angle(joint)
	return c.motion.AnimateArmJointTo(ctx, f, n, current+delta)
}
