package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/waferbot/pkg/queue"
	"github.com/gwillem/waferbot/pkg/registry"
)

func TestExecSummary_FailsOnFailedStep(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.Command{Name: "ok", Run: func(context.Context, registry.Args) error { return nil }}))
	require.NoError(t, r.Register(registry.Command{Name: "jam", Run: func(context.Context, registry.Args) error {
		return errors.New("base did not settle")
	}}))
	log := zaptest.NewLogger(t).Sugar()
	ec := &registry.ExecContext{Registry: r, Queue: queue.New(log), Log: log}

	run := func(names ...string) error {
		steps := make([]registry.Step, len(names))
		for i, n := range names {
			steps[i] = registry.Step{Name: n}
		}
		batch, err := ec.Enqueue(context.Background(), steps...)
		require.NoError(t, err)
		select {
		case <-batch.Done():
		case <-time.After(time.Second):
			t.Fatal("batch did not finish")
		}
		return execSummary(batch, len(steps))
	}

	assert.NoError(t, run("ok", "ok"))

	err := run("ok", "jam", "ok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 step(s) failed")
	assert.Contains(t, err.Error(), "base did not settle")
}
