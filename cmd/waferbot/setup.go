package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/waferbot/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// servoCount is the number of joints on the bus, IDs 1 through 7.
const servoCount = 7

type SetupCommand struct {
	Port   string `short:"p" long:"port" description:"Serial port (skips scanning)"`
	Import string `long:"import" description:"Read calibration from a JSON file instead of recording it"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("waferbot Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return err
	}

	// Step 1: find the bus
	port := c.Port
	if port == "" {
		port = scanForRobot()
	}
	cfg.Driver.Kind = "feetech"
	cfg.Driver.Port = port

	// Step 2: calibrate
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating Joints ━━━"))
	fmt.Println()
	if c.Import != "" {
		cal, err := robot.LoadCalibration(c.Import)
		if err != nil {
			return err
		}
		cfg.Driver.Calibration = cal
		fmt.Printf("Imported calibration from %s\n", c.Import)
	} else {
		cfg.Driver.Calibration = calibrate(port, cfg.Driver.BaudRate)
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the robot with: " + headerStyle.Render("waferbot run"))

	return nil
}

type busInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func scanForRobot() string {
	fmt.Println("Scanning for the robot...")
	fmt.Println()

	found := findRobots()
	if len(found) == 0 {
		fmt.Println("No wafer robot found.")
		fmt.Println("Make sure the servo bus is connected and powered on.")
		os.Exit(1)
	}
	if len(found) == 1 {
		found[0].bus.Close()
		return found[0].port
	}

	fmt.Printf("Found %d candidate buses. Let's identify the robot...\n\n", len(found))
	var port string
	for _, b := range found {
		if port != "" {
			b.bus.Close()
			continue
		}
		if identifyWithWiggle(b) {
			port = b.port
		}
	}
	if port == "" {
		fmt.Println("No bus was identified as the robot.")
		os.Exit(1)
	}
	return port
}

func findRobots() []busInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []busInfo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, servos, err := connectToRobot(port, 1_000_000)
		if err != nil {
			continue
		}
		fmt.Printf("  Found %d servos on %s\n", len(servos), port)
		found = append(found, busInfo{port: port, servos: servos, bus: bus})
	}
	return found
}

func isWaferRobot(servos []feetech.FoundServo) bool {
	if len(servos) != servoCount {
		return false
	}
	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= servoCount; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

func connectToRobot(port string, baudRate int) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, servoCount)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	if !isWaferRobot(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("not a wafer robot (expected %d servos with IDs 1-%d)", servoCount, servoCount)
	}
	return bus, servos, nil
}

// identifyWithWiggle nudges the base servo and asks whether it moved.
func identifyWithWiggle(b busInfo) bool {
	defer b.bus.Close()
	ctx := context.Background()

	var servo *feetech.Servo
	for _, s := range b.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(b.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return false
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return false
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return false
	}

	fmt.Printf("\n  Wiggling base on %s...\n", b.port)
	wiggleAmount := 30
	moveTimeMs := 500
	for _, pos := range []int{originalPos + wiggleAmount, originalPos - wiggleAmount, originalPos} {
		servo.SetPositionWithTime(ctx, pos, moveTimeMs)
		time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	}
	servo.Disable(ctx)

	var yes bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Did the robot base on %s move?", b.port)).
				Affirmative("Yes").
				Negative("No").
				Value(&yes),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return yes
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// calibrate records the zero pose and the range of every joint.
func calibrate(port string, baudRate int) robot.Calibration {
	fmt.Printf("Calibrating joints on %s\n", port)
	fmt.Println()

	bus, servos, err := connectToRobot(port, baudRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	servoMap := make(map[int]*feetech.Servo)
	for _, s := range servos {
		servoMap[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}

	// Disable all servos so the joints can be moved by hand
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	joints := robot.AllJoints()
	ids := robot.DefaultCalibration()

	fmt.Println(subHeaderStyle.Render("Record zero pose"))
	waitForUser("Turn the base to 0° and stretch both arms out straight.")

	offsets := make(map[robot.JointID]int)
	curPositions := make(map[robot.JointID]int)
	minPositions := make(map[robot.JointID]int)
	maxPositions := make(map[robot.JointID]int)
	for _, j := range joints {
		pos, err := servoMap[ids[j].ID].Position(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", j, err)
			os.Exit(1)
		}
		offsets[j] = pos
		curPositions[j] = pos
		minPositions[j] = pos
		maxPositions[j] = pos
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := calibrationModel{
		joints:       joints,
		ids:          ids,
		servoMap:     servoMap,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running calibration: %v\n", err)
		os.Exit(1)
	}
	cm := finalModel.(calibrationModel)

	cal := make(robot.Calibration)
	for _, j := range joints {
		cal[j] = robot.MotorCalibration{
			ID:           ids[j].ID,
			HomingOffset: offsets[j],
			RangeMin:     cm.minPositions[j],
			RangeMax:     cm.maxPositions[j],
		}
	}
	fmt.Println()
	fmt.Println("Joints calibrated.")
	return cal
}

// Calibration TUI model
type calibrationModel struct {
	joints       []robot.JointID
	ids          robot.Calibration
	servoMap     map[int]*feetech.Servo
	curPositions map[robot.JointID]int
	minPositions map[robot.JointID]int
	maxPositions map[robot.JointID]int
	quitting     bool
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, j := range m.joints {
			pos, err := m.servoMap[m.ids[j].ID].Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[j] = pos
			if pos < m.minPositions[j] {
				m.minPositions[j] = pos
			}
			if pos > m.maxPositions[j] {
				m.maxPositions[j] = pos
			}
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	jointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	currentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	rangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	rangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, j := range m.joints {
		rangeSize := m.maxPositions[j] - m.minPositions[j]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(j),
			fmt.Sprintf("%d", m.curPositions[j]),
			fmt.Sprintf("%d", m.minPositions[j]),
			fmt.Sprintf("%d", m.maxPositions[j]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return jointStyle
			case 1:
				return currentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return rangeGoodStyle
				}
				return rangeLowStyle
			default:
				return cellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
