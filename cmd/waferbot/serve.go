package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwillem/waferbot/pkg/web"
)

type ServeCommand struct {
	Addr string `long:"addr" description:"Listen address (default from config)"`
}

func (c *ServeCommand) Execute(args []string) error {
	cl, log, err := openCell(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer cl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := c.Addr
	if addr == "" {
		addr = cl.Config().Web.Addr()
	}
	err = web.NewServer(cl, log.Named("web")).ListenAndServe(ctx, addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("web stopped")
	return nil
}
