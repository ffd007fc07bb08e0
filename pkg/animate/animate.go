// Package animate defines the single-joint animation primitive and a
// software simulator for it.
package animate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gwillem/waferbot/pkg/robot"
)

// DefaultDuration is the time a composite move takes unless configured.
const DefaultDuration = 800 * time.Millisecond

var (
	// ErrSuperseded is the result of a motion replaced by a later AnimateTo
	// on the same joint.
	ErrSuperseded = errors.New("animation superseded")
	// ErrStopped is the result of a motion cut short by Stop.
	ErrStopped = errors.New("animation stopped")
)

// Animator moves one joint at a time. AnimateTo never blocks; the returned
// Motion reports when the joint arrived or why it did not.
type Animator interface {
	AnimateTo(joint robot.JointID, target float64, d time.Duration) *Motion
}

// Motion is the handle of one joint animation. It completes exactly once.
type Motion struct {
	Joint  robot.JointID
	Target float64

	done chan struct{}
	once sync.Once
	err  error
}

// NewMotion returns a pending motion.
func NewMotion(joint robot.JointID, target float64) *Motion {
	return &Motion{Joint: joint, Target: target, done: make(chan struct{})}
}

// Complete finishes the motion. Only the first call has an effect.
func (m *Motion) Complete(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

// Done is closed when the motion finished, successfully or not.
func (m *Motion) Done() <-chan struct{} {
	return m.done
}

// Err returns nil for a motion that reached its target. It is only
// meaningful after Done is closed.
func (m *Motion) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Wait blocks until the motion finished or ctx is cancelled.
func (m *Motion) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnComplete calls fn once the joint reached its target. fn is never called
// for a superseded or failed motion.
func (m *Motion) OnComplete(fn func()) {
	go func() {
		<-m.done
		if m.err == nil {
			fn()
		}
	}()
}

// Tracker records the motion currently owning each joint. The zero value
// is ready to use.
type Tracker struct {
	mu     sync.Mutex
	active map[robot.JointID]*Motion
}

// Start makes m the joint's current motion and supersedes the previous one.
func (t *Tracker) Start(m *Motion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		t.active = make(map[robot.JointID]*Motion)
	}
	if prev, ok := t.active[m.Joint]; ok && prev != m {
		prev.Complete(ErrSuperseded)
	}
	t.active[m.Joint] = m
}

// Current reports whether m still owns its joint. Use it to skip slow work
// for a motion that was superseded; commit the result with Step.
func (t *Tracker) Current(m *Motion) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[m.Joint] == m
}

// Step runs fn while m is still current. fn runs under the tracker lock, so
// it must not block. When fn reports done, m is retired
// and completed with err. Step returns whether m should keep running.
func (t *Tracker) Step(m *Motion, fn func() (done bool, err error)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[m.Joint] != m {
		return false
	}
	done, err := fn()
	if !done {
		return true
	}
	delete(t.active, m.Joint)
	m.Complete(err)
	return false
}

// StopAll completes every running motion with err.
func (t *Tracker) StopAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for j, m := range t.active {
		m.Complete(err)
		delete(t.active, j)
	}
}

// Active returns the number of joints currently moving.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
