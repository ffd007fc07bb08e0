package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/waferbot/pkg/robot"
)

var tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)

type PosesCommand struct{}

func (c *PosesCommand) Execute(args []string) error {
	cl, log, err := openCell(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer cl.Close()

	poses, err := cl.Poses(context.Background())
	if err != nil {
		return err
	}
	if len(poses) == 0 {
		fmt.Println("No stations taught yet. Use " + headerStyle.Render("waferbot teach") + ".")
		return nil
	}
	fmt.Println(renderPoses(poses...))
	return nil
}

func renderPoses(poses ...robot.PoseData) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	stationStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)

	rows := make([][]string, 0, len(poses))
	for _, p := range poses {
		rows = append(rows, []string{
			p.Station,
			fmt.Sprintf("%.1f", p.J7),
			fmt.Sprintf("%.1f / %.1f / %.1f", p.J1, p.J2, p.J3),
			fmt.Sprintf("%.1f", p.J8),
			fmt.Sprintf("%.1f / %.1f / %.1f", p.J4, p.J5, p.J6),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Station", "Base A", "Arm A", "Base B", "Arm B").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return stationStyle
			}
			return cellStyle
		}).
		Render()
}
