// Package registry maps command names to operations of the cell. A registry
// is constructed explicitly and handed to whoever dispatches commands.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/waferbot/pkg/queue"
	"github.com/gwillem/waferbot/pkg/robot"
)

var (
	// ErrUnknownCommand is returned for a name nothing was registered under.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicate rejects a second command with the same name.
	ErrDuplicate = errors.New("command already registered")
)

// Args are the named arguments of a command invocation.
type Args map[string]string

// String returns the value of key or def when it is unset.
func (a Args) String(key, def string) string {
	if v, ok := a[key]; ok && v != "" {
		return v
	}
	return def
}

// Float parses key as a number.
func (a Args) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return f, nil
}

// Finger parses key as a finger name, defaulting to FingerA.
func (a Args) Finger(key string) (robot.Finger, error) {
	return robot.ParseFinger(a.String(key, "A"))
}

// Required returns the value of key or an error when it is unset.
func (a Args) Required(key string) (string, error) {
	v := a.String(key, "")
	if v == "" {
		return "", fmt.Errorf("missing argument %q", key)
	}
	return v, nil
}

// Command is a named, blocking operation.
type Command struct {
	Name  string
	Usage string
	Run   func(ctx context.Context, args Args) error
}

// Registry holds commands by name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd. Names are case-insensitive and must be unique.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(cmd.Name)
	if name == "" || cmd.Run == nil {
		return fmt.Errorf("register %q: name and run are required", cmd.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("register %q: %w", cmd.Name, ErrDuplicate)
	}
	cmd.Name = name
	r.commands[name] = cmd
	return nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Commands returns all commands sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	cmds := r.Commands()
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	return names
}

// Run executes the named command and waits for it.
func (r *Registry) Run(ctx context.Context, name string, args Args) error {
	cmd, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	return cmd.Run(ctx, args)
}

// Step is one command invocation of a sequence.
type Step struct {
	Name string
	Args Args
}

// ParseStep parses "name key=value key=value".
func ParseStep(s string) (Step, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Step{}, errors.New("empty step")
	}
	st := Step{Name: fields[0], Args: Args{}}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return Step{}, fmt.Errorf("step %q: malformed argument %q", s, f)
		}
		st.Args[k] = v
	}
	return st, nil
}

// ExecContext carries what a dispatcher needs to run commands, so no part
// of the program reaches for process-wide state.
type ExecContext struct {
	Registry *Registry
	Queue    *queue.Queue
	Log      *zap.SugaredLogger
}

// Batch is the outcome of one Enqueue call.
type Batch struct {
	mu      sync.Mutex
	steps   int
	pending int
	failed  []error
	done    chan struct{}
}

func newBatch(steps int) *Batch {
	b := &Batch{steps: steps, pending: steps, done: make(chan struct{})}
	if steps == 0 {
		close(b.done)
	}
	return b
}

func (b *Batch) finish(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failed = append(b.failed, fmt.Errorf("step %s: %w", name, err))
	}
	b.pending--
	if b.pending == 0 {
		close(b.done)
	}
}

// Done is closed once every step of the batch returned.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch finished or ctx is cancelled, then returns Err.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns the number of steps that returned an error so far.
func (b *Batch) Failed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failed)
}

// Err joins the errors of the failed steps, or returns nil when none failed.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d step(s) failed: %w", len(b.failed), b.steps, errors.Join(b.failed...))
}

// Enqueue validates every step and appends them to the queue in order.
// Each step runs on its own goroutine and releases the queue when it
// returns. Failed steps are logged and the sequence continues; the
// returned batch counts them.
func (e *ExecContext) Enqueue(ctx context.Context, steps ...Step) (*Batch, error) {
	cmds := make([]Command, len(steps))
	for i, st := range steps {
		cmd, ok := e.Registry.Lookup(st.Name)
		if !ok {
			return nil, fmt.Errorf("step %d %s: %w", i+1, st.Name, ErrUnknownCommand)
		}
		cmds[i] = cmd
	}
	batch := newBatch(len(cmds))
	for i, cmd := range cmds {
		args := steps[i].Args
		e.Queue.Enqueue(func(next func()) error {
			go func() {
				defer next()
				err := cmd.Run(ctx, args)
				if err != nil {
					e.Log.Warnf("step %s: %v", cmd.Name, err)
				}
				batch.finish(cmd.Name, err)
			}()
			return nil
		})
	}
	e.Queue.RunQueue()
	return batch, nil
}
