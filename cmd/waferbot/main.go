package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"waferbot.yaml" description:"Configuration file"`

	Setup SetupCommand `command:"setup" description:"Find the servo bus and calibrate the joints"`
	Run   RunCommand   `command:"run" description:"Operate the robot from the terminal"`
	Serve ServeCommand `command:"serve" description:"Serve the HTTP API and event stream"`
	Exec  ExecCommand  `command:"exec" description:"Run a sequence of commands, e.g. \"rotate angle=90\" \"pick station=pm1 finger=A\""`
	Teach TeachCommand `command:"teach" description:"Record the current pose for a station"`
	Poses PosesCommand `command:"poses" description:"List taught stations"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "waferbot - dual end-effector wafer transfer robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
