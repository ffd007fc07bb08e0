// Package servo drives the robot's joints with Feetech STS servos.
package servo

import (
	"context"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"

	"github.com/gwillem/waferbot/pkg/robot"
)

// Bus is the servo access the animator needs.
type Bus interface {
	ReadPositions(ctx context.Context) (map[int]int, error)
	WritePosition(ctx context.Context, id, raw int) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Close() error
}

// FeetechBus talks to the servos of one serial bus.
type FeetechBus struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
}

// OpenBus opens the serial port and groups the calibrated servo IDs.
func OpenBus(port string, baudRate int, cal robot.Calibration) (*FeetechBus, error) {
	if baudRate <= 0 {
		baudRate = 1_000_000
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", port)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)
	return &FeetechBus{bus: bus, group: group}, nil
}

// ReadPositions reads raw positions of all grouped servos.
func (b *FeetechBus) ReadPositions(ctx context.Context) (map[int]int, error) {
	raw, err := b.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read positions")
	}
	out := make(map[int]int, len(raw))
	for id, pos := range raw {
		out[id] = pos
	}
	return out, nil
}

// WritePosition sets the goal of one servo.
func (b *FeetechBus) WritePosition(ctx context.Context, id, raw int) error {
	if err := b.group.SetPositions(ctx, feetech.PositionMap{id: raw}); err != nil {
		return errors.Wrapf(err, "failed to move servo %d", id)
	}
	return nil
}

// Enable enables torque on all servos.
func (b *FeetechBus) Enable(ctx context.Context) error {
	return b.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (b *FeetechBus) Disable(ctx context.Context) error {
	return b.group.DisableAll(ctx)
}

// Close closes the serial port.
func (b *FeetechBus) Close() error {
	return b.bus.Close()
}
