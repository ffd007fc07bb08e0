package main

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/waferbot/pkg/cell"
	"github.com/gwillem/waferbot/pkg/robot"
)

// newLogger builds the process logger. Quiet keeps the terminal free for the TUI.
func newLogger(cfg robot.LogConfig, quiet bool) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	if quiet {
		level.SetLevel(zapcore.FatalLevel)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// openCell loads the configuration and builds the cell.
func openCell(quiet bool) (*cell.Cell, *zap.SugaredLogger, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg.Log, quiet)
	if err != nil {
		return nil, nil, err
	}
	c, err := cell.New(cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return c, log, nil
}
