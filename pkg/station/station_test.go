package station

import (
	"errors"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/waferbot/pkg/events"
)

func TestSimulated(t *testing.T) {
	s := NewSimulated()
	got, err := s.Present()
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, s.Set(true))
	got, _ = s.Present()
	assert.True(t, got)
}

func TestWithEvents(t *testing.T) {
	bus := events.NewBus()
	var seen []bool
	bus.SubscribeTypes(func(e events.Event) {
		seen = append(seen, e.Payload.(events.StationSignalChanged).Present)
	}, events.EventStationSignalChanged)

	sig := WithEvents(NewSimulated(), bus)
	require.NoError(t, sig.Set(true))
	require.NoError(t, sig.Set(false))

	assert.Equal(t, []bool{true, false}, seen)
	got, _ := sig.Present()
	assert.False(t, got)
}

// loopback echoes every retained command onto the state topic.
type loopback struct {
	handlers map[string]func([]byte)
	fail     error
}

func (l *loopback) PublishRetained(topic string, payload []byte) error {
	if l.fail != nil {
		return l.fail
	}
	if h, ok := l.handlers["state"]; ok {
		h(payload)
	}
	return nil
}

func (l *loopback) Subscribe(topic string, handler func([]byte)) error {
	if l.handlers == nil {
		l.handlers = make(map[string]func([]byte))
	}
	l.handlers[topic] = handler
	return nil
}

func TestMQTT(t *testing.T) {
	pub := &loopback{}
	sig, err := NewMQTT(pub, "command", "state")
	require.NoError(t, err)

	got, _ := sig.Present()
	assert.False(t, got, "absent until the station reports")

	require.NoError(t, sig.Set(true))
	got, _ = sig.Present()
	assert.True(t, got)

	// unknown payloads leave the value alone
	pub.handlers["state"]([]byte("banana"))
	got, _ = sig.Present()
	assert.True(t, got)

	pub.handlers["state"]([]byte(" 0 "))
	got, _ = sig.Present()
	assert.False(t, got)

	pub.fail = errors.New("broker down")
	assert.Error(t, sig.Set(true))
}

// plc loops the written coil back to the discrete input.
type plc struct {
	modbus.Client
	coil bool
}

func (p *plc) WriteSingleCoil(address, value uint16) ([]byte, error) {
	p.coil = value == 0xFF00
	return nil, nil
}

func (p *plc) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	if p.coil {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func TestModbus(t *testing.T) {
	sig := NewModbus(&plc{}, 4, 2)

	require.NoError(t, sig.Set(true))
	got, err := sig.Present()
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, sig.Set(false))
	got, _ = sig.Present()
	assert.False(t, got)
	assert.NoError(t, sig.Close())
}
