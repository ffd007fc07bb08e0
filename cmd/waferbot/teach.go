package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/waferbot/pkg/robot"
)

type TeachCommand struct {
	Station string `short:"s" long:"station" description:"Station name"`
	Finger  string `short:"f" long:"finger" description:"End-effector, A or B"`
}

func (c *TeachCommand) Execute(args []string) error {
	station := c.Station
	finger := strings.ToUpper(c.Finger)

	if station == "" || finger == "" {
		if finger == "" {
			finger = string(robot.FingerA)
		}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Station").
					Description("Name of the station the end-effector is aligned with").
					Value(&station).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("station name is required")
						}
						return nil
					}),
				huh.NewSelect[string]().
					Title("End-effector").
					Options(
						huh.NewOption("FingerA (left arm)", string(robot.FingerA)),
						huh.NewOption("FingerB (right arm)", string(robot.FingerB)),
					).
					Value(&finger),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Println()
			os.Exit(0)
		}
	}

	f, err := robot.ParseFinger(finger)
	if err != nil {
		return err
	}

	cl, log, err := openCell(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer cl.Close()

	if cl.Config().Driver.Kind != "feetech" {
		fmt.Println(dimStyle.Render("Simulated driver: the recorded angles are the startup pose."))
	}

	pose, err := cl.Teach(context.Background(), strings.TrimSpace(station), f)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Taught %s at %q", f, pose.Station)))
	fmt.Println(renderPoses(pose))
	return nil
}
