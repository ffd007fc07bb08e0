package station

import (
	"fmt"
	"strings"
	"sync"
)

// PubSub is the part of the messaging client the MQTT signal needs.
type PubSub interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
}

// MQTT asks the station over a command topic and tracks the value the
// station reports on a state topic. Until the first state message arrives
// the station counts as absent.
type MQTT struct {
	client       PubSub
	commandTopic string

	mu      sync.RWMutex
	present bool
}

// NewMQTT subscribes to stateTopic and returns the signal.
func NewMQTT(client PubSub, commandTopic, stateTopic string) (*MQTT, error) {
	m := &MQTT{client: client, commandTopic: commandTopic}
	if err := client.Subscribe(stateTopic, m.handleState); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", stateTopic, err)
	}
	return m, nil
}

func (m *MQTT) handleState(payload []byte) {
	v, ok := parsePresence(payload)
	if !ok {
		return
	}
	m.mu.Lock()
	m.present = v
	m.mu.Unlock()
}

// Set publishes the requested presence on the command topic.
func (m *MQTT) Set(present bool) error {
	if err := m.client.PublishRetained(m.commandTopic, formatPresence(present)); err != nil {
		return fmt.Errorf("publish %s: %w", m.commandTopic, err)
	}
	return nil
}

// Present returns the last value seen on the state topic.
func (m *MQTT) Present() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.present, nil
}

func formatPresence(present bool) []byte {
	if present {
		return []byte("present")
	}
	return []byte("absent")
}

func parsePresence(payload []byte) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "present", "1", "true", "on":
		return true, true
	case "absent", "0", "false", "off":
		return false, true
	}
	return false, false
}
