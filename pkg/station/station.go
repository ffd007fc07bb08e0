// Package station provides the wafer presence signal of the station the
// robot transfers to and from.
package station

import (
	"sync/atomic"

	"github.com/gwillem/waferbot/pkg/events"
)

// Signal is the station-side wafer presence flag.
type Signal interface {
	// Set asks the station to report present or absent.
	Set(present bool) error
	// Present returns what the station currently reports.
	Present() (bool, error)
}

// Simulated stores the flag in memory. Present always returns the last
// value passed to Set.
type Simulated struct {
	present atomic.Bool
}

// NewSimulated returns a signal reporting absent.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Set records the value Present reports next.
func (s *Simulated) Set(present bool) error {
	s.present.Store(present)
	return nil
}

// Present returns the last value passed to Set.
func (s *Simulated) Present() (bool, error) {
	return s.present.Load(), nil
}

// Observed publishes an event whenever the wrapped signal is set.
type Observed struct {
	Signal
	bus *events.Bus
}

// WithEvents wraps sig so every successful Set emits
// EventStationSignalChanged on bus.
func WithEvents(sig Signal, bus *events.Bus) *Observed {
	return &Observed{Signal: sig, bus: bus}
}

// Set forwards to the wrapped signal and emits the change.
func (o *Observed) Set(present bool) error {
	if err := o.Signal.Set(present); err != nil {
		return err
	}
	o.bus.Emit(events.Event{
		Type:    events.EventStationSignalChanged,
		Payload: events.StationSignalChanged{Present: present},
	})
	return nil
}
