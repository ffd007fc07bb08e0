package station

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goburrow/modbus"

	"github.com/gwillem/waferbot/pkg/robot"
)

type connector interface {
	Connect() error
	Close() error
}

// Modbus drives the signal through a station PLC: Set writes a coil and
// Present reads a discrete input.
type Modbus struct {
	mu      sync.Mutex
	handler connector
	client  modbus.Client
	coil    uint16
	input   uint16
}

// NewModbus wraps an already connected client.
func NewModbus(client modbus.Client, coil, input uint16) *Modbus {
	return &Modbus{client: client, coil: coil, input: input}
}

// DialModbus connects to the PLC described by cfg. Addresses containing a
// colon use Modbus TCP, anything else is opened as an RTU serial port.
func DialModbus(cfg robot.StationModbusConfig) (*Modbus, error) {
	var (
		handler modbus.ClientHandler
		conn    connector
	)
	if strings.Contains(cfg.Address, ":") {
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		handler, conn = h, h
	} else {
		h := modbus.NewRTUClientHandler(cfg.Address)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		handler, conn = h, h
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("open modbus %q: %w", cfg.Address, err)
	}

	m := NewModbus(modbus.NewClient(handler), cfg.Coil, cfg.Input)
	m.handler = conn
	return m, nil
}

// Set writes the request coil.
func (m *Modbus) Set(present bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v uint16
	if present {
		v = 0xFF00
	}
	if _, err := m.client.WriteSingleCoil(m.coil, v); err != nil {
		return fmt.Errorf("write coil %d: %w", m.coil, err)
	}
	return nil
}

// Present reads the presence input.
func (m *Modbus) Present() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results, err := m.client.ReadDiscreteInputs(m.input, 1)
	if err != nil {
		return false, fmt.Errorf("read input %d: %w", m.input, err)
	}
	if len(results) == 0 {
		return false, fmt.Errorf("read input %d: empty response", m.input)
	}
	return results[0]&1 == 1, nil
}

// Close releases the underlying connection, if DialModbus opened one.
func (m *Modbus) Close() error {
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}
