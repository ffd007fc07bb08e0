package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/waferbot/pkg/cell"
	"github.com/gwillem/waferbot/pkg/events"
	"github.com/gwillem/waferbot/pkg/robot"
)

type RunCommand struct {
	Hz int `long:"hz" default:"30" description:"Display refresh frequency"`
}

const (
	headerHeight = 3 // title, status + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 9 // key help + log box
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	jogStep      = 5.0
	rotateStep   = 15.0
)

// Joint colors - distinct colors for each joint
var jointColors = map[robot.JointID]string{
	robot.Base:       "196", // red
	robot.Arm1Joint1: "208", // orange
	robot.Arm1Joint2: "226", // yellow
	robot.Arm1Joint3: "46",  // green
	robot.Arm2Joint1: "51",  // cyan
	robot.Arm2Joint2: "33",  // blue
	robot.Arm2Joint3: "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("11")).Padding(0, 1)
)

type runModel struct {
	ctx        context.Context
	cell       *cell.Cell
	hz         int
	chart      *streamlinechart.Model
	width      int // terminal width
	height     int // terminal height
	logs       []string
	quitting   bool
	finger     robot.Finger
	stations   []string
	station    int
	panel      bool
	jogJoint   int
	state      cell.State
	lastAngles map[robot.JointID]float64 // freeze the chart when idle
	panelCh    chan struct{}
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any joint angle has changed from the last state
func (m *runModel) hasMovement(angles map[robot.JointID]float64) bool {
	if m.lastAngles == nil {
		return true
	}
	for j, a := range angles {
		if last, ok := m.lastAngles[j]; !ok || a != last {
			return true
		}
	}
	return false
}

// Messages from the cell
type stateMsg cell.State
type logMsg string
type panelMsg struct{}
type stationsMsg []string
type doneMsg struct {
	what string
	err  error
}

func waitForState(c *cell.Cell) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-c.States())
	}
}

func waitForLog(c *cell.Cell) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-c.Logs())
	}
}

func waitForPanel(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return panelMsg{}
	}
}

func (m *runModel) loadStations() tea.Cmd {
	return func() tea.Msg {
		poses, err := m.cell.Poses(m.ctx)
		if err != nil {
			return doneMsg{what: "load stations", err: err}
		}
		names := make([]string, 0, len(poses))
		for _, p := range poses {
			names = append(names, p.Station)
		}
		return stationsMsg(names)
	}
}

// do runs a blocking cell operation off the UI loop.
func (m *runModel) do(what string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{what: what, err: fn(m.ctx)}
	}
}

func (m *runModel) currentStation() string {
	if len(m.stations) == 0 {
		return ""
	}
	return m.stations[m.station%len(m.stations)]
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if m.panel {
		height -= 4
	}
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(ctx context.Context, c *cell.Cell, hz int) *runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-270, 360),
	)
	for _, j := range robot.AllJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[j]))
		chart.SetDataSetStyles(string(j), runes.ThinLineStyle, style)
	}

	m := &runModel{
		ctx:      ctx,
		cell:     c,
		hz:       hz,
		chart:    &chart,
		finger:   robot.FingerA,
		jogJoint: 1,
		panelCh:  make(chan struct{}, 1),
	}
	c.Bus().SubscribeTypes(func(events.Event) {
		select {
		case m.panelCh <- struct{}{}:
		default:
		}
	}, events.EventPanelRequested)
	return m
}

func (m *runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.cell),
		waitForLog(m.cell),
		waitForPanel(m.panelCh),
		m.loadStations(),
	)
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case stateMsg:
		m.state = cell.State(msg)
		angles := m.state.Pose.Angles
		if m.hasMovement(angles) {
			for j, a := range angles {
				m.chart.PushDataSet(string(j), a)
			}
			m.chart.DrawAll()
			m.lastAngles = angles
		}
		return m, waitForState(m.cell)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.cell)

	case panelMsg:
		m.panel = !m.panel
		m.resizeChart()
		return m, waitForPanel(m.panelCh)

	case stationsMsg:
		m.stations = msg
		if m.station >= len(m.stations) {
			m.station = 0
		}
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("%s: %v", msg.what, msg.err))
		}
		if strings.HasPrefix(msg.what, "teach") {
			return m, m.loadStations()
		}
		return m, nil
	}

	return m, nil
}

func (m *runModel) handleKey(key string) tea.Cmd {
	f := m.finger
	station := m.currentStation()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return tea.Quit
	case "a":
		m.finger = robot.FingerA
	case "b":
		m.finger = robot.FingerB
	case "tab":
		if len(m.stations) > 0 {
			m.station = (m.station + 1) % len(m.stations)
		}
	case "m":
		m.cell.RequestPanel()
	case "h":
		return m.do("home", m.cell.HomeAll)
	case "r":
		return m.do("retract", m.cell.HomeArms)
	case "e":
		return m.do("extend "+f.String(), func(ctx context.Context) error {
			return m.cell.ExtendFinger(ctx, f)
		})
	case "left", "right":
		delta := rotateStep
		if key == "left" {
			delta = -rotateStep
		}
		target := m.state.Pose.Angles[robot.Base] + delta
		return m.do("rotate", func(ctx context.Context) error {
			return m.cell.RotateTo(ctx, target)
		})
	case "p", "l", "g", "t":
		if station == "" && key != "t" {
			m.addLog("no station taught yet")
			return nil
		}
		switch key {
		case "p":
			return m.do("pick "+station, func(ctx context.Context) error {
				return m.cell.PickAt(ctx, f, station)
			})
		case "l":
			return m.do("place "+station, func(ctx context.Context) error {
				return m.cell.PlaceAt(ctx, f, station)
			})
		case "g":
			return m.do("locate "+station, func(ctx context.Context) error {
				return m.cell.Locate(ctx, station, f)
			})
		case "t":
			if station == "" {
				station = fmt.Sprintf("station%d", len(m.stations)+1)
			}
			return m.do("teach "+station, func(ctx context.Context) error {
				_, err := m.cell.Teach(ctx, station, f)
				return err
			})
		}
	}

	if !m.panel {
		return nil
	}
	switch key {
	case "1", "2", "3":
		m.jogJoint = int(key[0] - '0')
	case "up", "down":
		delta := jogStep
		if key == "down" {
			delta = -jogStep
		}
		n := m.jogJoint
		return m.do("jog", func(ctx context.Context) error {
			return m.cell.JogArmJoint(ctx, f, n, delta)
		})
	}
	return nil
}

func (m *runModel) View() string {
	if m.quitting {
		return "waferbot stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("waferbot"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.hz))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	if m.panel {
		sb.WriteString(m.renderPanel())
		sb.WriteString("\n")
	}

	sb.WriteString(statusStyle.Render("a/b finger  tab station  ←/→ rotate  e extend  r retract  h home  p pick  l place  g locate  t teach  m panel  q quit"))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m *runModel) renderStatus() string {
	holding := func(b bool) string {
		if b {
			return successStyle.Render("wafer")
		}
		return statusStyle.Render("empty")
	}
	station := m.currentStation()
	if station == "" {
		station = "-"
	}
	return fmt.Sprintf("%s  station %s  base %.1f°  FingerA %s  FingerB %s  transfer %s  queued %d",
		subHeaderStyle.Render(m.finger.String()),
		headerStyle.Render(station),
		m.state.Pose.Angles[robot.Base],
		holding(m.state.Pose.FingerAHolding),
		holding(m.state.Pose.FingerBHolding),
		m.state.Transfer,
		m.state.Queued,
	)
}

func (m *runModel) renderPanel() string {
	joints := m.finger.ArmJoints()
	var cols []string
	for i, j := range joints {
		label := fmt.Sprintf("%d %s %7.1f°", i+1, j, m.state.Pose.Angles[j])
		if i+1 == m.jogJoint {
			label = headerStyle.Render(label)
		}
		cols = append(cols, label)
	}
	body := strings.Join(cols, "   ") + "\n" + statusStyle.Render("1/2/3 select joint  ↑/↓ jog 5°")
	return panelStyle.Render(body)
}

func renderLegend() string {
	var items []string
	for _, j := range robot.AllJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[j])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(j))
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	cl, log, err := openCell(true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer cl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cl.Start(ctx, c.Hz); err != nil && err != context.Canceled {
			log.Errorf("cell stopped: %v", err)
		}
	}()

	p := tea.NewProgram(initialRunModel(ctx, cl, c.Hz), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
