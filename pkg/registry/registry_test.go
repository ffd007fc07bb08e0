package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/waferbot/pkg/queue"
	"github.com/gwillem/waferbot/pkg/robot"
)

func noop(context.Context, Args) error { return nil }

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Command{Name: "home", Run: noop}))

	err := r.Register(Command{Name: "HOME", Run: noop})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Error(t, r.Register(Command{Name: "", Run: noop}))
	assert.Error(t, r.Register(Command{Name: "x"}))
}

func TestRegistry_LookupAndRun(t *testing.T) {
	r := New()
	var got Args
	require.NoError(t, r.Register(Command{Name: "rotate", Run: func(_ context.Context, a Args) error {
		got = a
		return nil
	}}))
	require.NoError(t, r.Register(Command{Name: "home", Run: noop}))

	assert.Equal(t, []string{"home", "rotate"}, r.Names())

	require.NoError(t, r.Run(context.Background(), "Rotate", Args{"angle": "90"}))
	assert.Equal(t, Args{"angle": "90"}, got)

	err := r.Run(context.Background(), "dance", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestArgs(t *testing.T) {
	a := Args{"angle": "45.5", "finger": "b", "bad": "x"}

	f, err := a.Float("angle")
	require.NoError(t, err)
	assert.Equal(t, 45.5, f)

	_, err = a.Float("bad")
	assert.Error(t, err)
	_, err = a.Float("missing")
	assert.Error(t, err)

	finger, err := a.Finger("finger")
	require.NoError(t, err)
	assert.Equal(t, robot.FingerB, finger)

	finger, err = Args{}.Finger("finger")
	require.NoError(t, err)
	assert.Equal(t, robot.FingerA, finger)

	_, err = a.Required("station")
	assert.Error(t, err)
}

func TestParseStep(t *testing.T) {
	st, err := ParseStep("pick finger=B station=pm1")
	require.NoError(t, err)
	assert.Equal(t, Step{Name: "pick", Args: Args{"finger": "B", "station": "pm1"}}, st)

	_, err = ParseStep("   ")
	assert.Error(t, err)
	_, err = ParseStep("pick finger")
	assert.Error(t, err)
}

func TestExecContext_EnqueueRunsInOrder(t *testing.T) {
	r := New()
	var mu sync.Mutex
	var ran []string
	done := make(chan struct{})

	record := func(name string) func(context.Context, Args) error {
		return func(context.Context, Args) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, name)
			if name == "last" {
				close(done)
			}
			return nil
		}
	}
	require.NoError(t, r.Register(Command{Name: "first", Run: record("first")}))
	require.NoError(t, r.Register(Command{Name: "fail", Run: func(context.Context, Args) error {
		return errors.New("boom")
	}}))
	require.NoError(t, r.Register(Command{Name: "last", Run: record("last")}))

	log := zaptest.NewLogger(t).Sugar()
	ec := &ExecContext{Registry: r, Queue: queue.New(log), Log: log}

	batch, err := ec.Enqueue(context.Background(),
		Step{Name: "first"}, Step{Name: "fail"}, Step{Name: "last"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sequence did not finish")
	}
	mu.Lock()
	assert.Equal(t, []string{"first", "last"}, ran)
	mu.Unlock()
	<-batch.Done()
	assert.Equal(t, 1, batch.Failed())

	_, err = ec.Enqueue(context.Background(), Step{Name: "first"}, Step{Name: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, 0, ec.Queue.Len(), "nothing is queued when a step is unknown")
}

func TestExecContext_BatchCountsFailures(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Command{Name: "ok", Run: func(context.Context, Args) error { return nil }}))
	require.NoError(t, r.Register(Command{Name: "fail", Run: func(context.Context, Args) error {
		return errors.New("servo 3 not responding")
	}}))

	log := zaptest.NewLogger(t).Sugar()
	ec := &ExecContext{Registry: r, Queue: queue.New(log), Log: log}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	batch, err := ec.Enqueue(ctx, Step{Name: "fail"}, Step{Name: "ok"}, Step{Name: "fail"})
	require.NoError(t, err)
	err = batch.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, batch.Failed())
	assert.Contains(t, err.Error(), "2 of 3 step(s) failed")
	assert.Contains(t, err.Error(), "step fail: servo 3 not responding")

	batch, err = ec.Enqueue(ctx, Step{Name: "ok"})
	require.NoError(t, err)
	assert.NoError(t, batch.Wait(ctx))
	assert.Equal(t, 0, batch.Failed())
}
