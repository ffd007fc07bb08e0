package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwillem/waferbot/pkg/registry"
)

type ExecCommand struct {
	Args struct {
		Steps []string `positional-arg-name:"step" required:"1"`
	} `positional-args:"yes"`
}

func (c *ExecCommand) Execute(args []string) error {
	var steps []registry.Step
	for _, s := range c.Args.Steps {
		st, err := registry.ParseStep(s)
		if err != nil {
			return err
		}
		steps = append(steps, st)
	}

	cl, log, err := openCell(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer cl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch, err := cl.Sequence(steps...)
	if err != nil {
		return err
	}

	for {
		select {
		case line := <-cl.Logs():
			fmt.Println(dimStyle.Render(line))
		case <-ctx.Done():
			fmt.Println("Interrupted.")
			return nil
		case <-batch.Done():
			drainLogs(cl.Logs())
			return execSummary(batch, len(steps))
		}
	}
}

// execSummary prints the outcome and fails the command when a step failed.
func execSummary(batch *registry.Batch, steps int) error {
	if err := batch.Err(); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Ran %d step(s).", steps)))
	return nil
}

func drainLogs(logs <-chan string) {
	for {
		select {
		case line := <-logs:
			fmt.Println(dimStyle.Render(line))
		default:
			return
		}
	}
}
