package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/events"
)

// Sender is anything that can publish a payload to a topic.
type Sender interface {
	Publish(topic string, payload []byte) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Encode returns the JSON encoding of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NewEnvelope wraps a bus event.
func NewEnvelope(evt events.Event) Envelope {
	return Envelope{Type: evt.Type.String(), Timestamp: evt.Timestamp, Payload: evt.Payload}
}

// Publisher forwards bus events to a topic. Bus handlers only enqueue, a
// background goroutine does the sending. Events are dropped when the buffer
// is full.
type Publisher struct {
	sender Sender
	topic  string
	bus    *events.Bus
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	ch     chan events.Event
	subID  events.SubscriberID
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher for the given event types (all types if
// none are given).
func NewPublisher(sender Sender, topic string, bus *events.Bus, log *zap.SugaredLogger, types ...events.Type) *Publisher {
	p := &Publisher{
		sender: sender,
		topic:  topic,
		bus:    bus,
		log:    log,
		ch:     make(chan events.Event, 256),
	}
	p.subID = bus.SubscribeTypes(p.enqueue, types...)
	return p
}

// Start begins the send loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.loop()
}

func (p *Publisher) enqueue(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- evt:
	default:
		p.log.Debugf("publisher buffer full, dropping %s", evt.Type)
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for evt := range p.ch {
		data, err := NewEnvelope(evt).Encode()
		if err != nil {
			p.log.Warnf("encode %s: %v", evt.Type, err)
			continue
		}
		if err := p.sender.Publish(p.topic, data); err != nil {
			p.log.Warnf("publish %s: %v", evt.Type, err)
		}
	}
}

// Stop unsubscribes from the bus and waits for queued events to be sent.
func (p *Publisher) Stop() {
	p.bus.Unsubscribe(p.subID)
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
