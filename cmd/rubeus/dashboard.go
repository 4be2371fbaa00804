package main

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/control"
	"github.com/gwillem/rubeus/pkg/robot"
	"github.com/gwillem/rubeus/pkg/vector"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	tableHeight  = 8 // wheel table
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	stickStep = 0.25
)

// Wheel colors, in chain order.
var wheelColors = []string{
	"196", // red
	"226", // yellow
	"46",  // green
	"51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const keyHelp = "w/a/s/d drive  q/e turn  space stop  l lock  o orb  f zero heading  " +
	"1-4 home/pickup/low/high  z zero arm  r retract  g/b intake/barf  m manual arm  esc quit"

type dashboardModel struct {
	title    string
	ctrl     *control.Controller
	latch    *control.Latch
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	logs     []string
	state    robot.State
	hasState bool
	quitting bool
}

// Messages from the controller
type stateMsg robot.State
type logMsg string

func waitForState(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func newDashboard(title string, ctrl *control.Controller, latch *control.Latch) dashboardModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(0, 360),
	)
	for i, w := range robot.Wheels() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(wheelColors[i%len(wheelColors)]))
		chart.SetDataSetStyles(w.Name, runes.ThinLineStyle, style)
	}
	return dashboardModel{
		title: title,
		ctrl:  ctrl,
		latch: latch,
		chart: &chart,
	}
}

func (m *dashboardModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *dashboardModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-tableHeight-footerHeight-borderSize, 6)
	return width, height
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "esc" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		m.latch.Update(func(in *robot.Input) { applyKey(in, msg.String()) })
		return m, nil

	case stateMsg:
		m.state = robot.State(msg)
		m.hasState = true
		for _, w := range m.state.Wheels {
			m.chart.PushDataSet(w.Name, w.Direction*360/robot.EncoderCircumference)
		}
		m.chart.DrawAll()
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

// applyKey maps one key press onto the held input.
func applyKey(in *robot.Input, key string) {
	clamp := func(v float64) float64 { return math.Max(-1, math.Min(1, v)) }
	nudge := func(dx, dy float64) {
		in.Translation = vector.New(clamp(in.Translation.X+dx), clamp(in.Translation.Y+dy))
	}

	switch key {
	case "w":
		nudge(0, stickStep)
	case "s":
		nudge(0, -stickStep)
	case "a":
		nudge(-stickStep, 0)
	case "d":
		nudge(stickStep, 0)
	case "q":
		in.Rotation = clamp(in.Rotation - stickStep)
	case "e":
		in.Rotation = clamp(in.Rotation + stickStep)
	case " ":
		in.Translation = vector.Vector{}
		in.Rotation = 0
		in.Lock = false
		in.Orb = false
		in.ShoulderPercent = 0
		in.ElbowPercent = 0
	case "l":
		in.Lock = !in.Lock
	case "o":
		in.Orb = !in.Orb
	case "f":
		in.ZeroHeading = true
	case "+", "=":
		in.SpeedLimit = math.Min(1, in.SpeedLimit+0.25)
	case "-":
		in.SpeedLimit = math.Max(0.25, in.SpeedLimit-0.25)

	case "1":
		in.ArmPreset = robot.PresetHome
	case "2":
		in.ArmPreset = robot.PresetPickup
	case "3":
		in.ArmPreset = robot.PresetLowPole
	case "4":
		in.ArmPreset = robot.PresetHighPole
	case "z":
		in.Zero = true
	case "r":
		in.Retract = true
	case "g":
		in.Grab = arm.GrabIntake
	case "b":
		in.Grab = arm.GrabBarf
	case "m":
		in.ArmManual = !in.ArmManual
		in.ShoulderPercent = 0
		in.ElbowPercent = 0
	case "up":
		in.ShoulderPercent = clamp(in.ShoulderPercent + 0.1)
	case "down":
		in.ShoulderPercent = clamp(in.ShoulderPercent - 0.1)
	case "right":
		in.ElbowPercent = clamp(in.ElbowPercent + 0.1)
	case "left":
		in.ElbowPercent = clamp(in.ElbowPercent - 0.1)
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Control stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.hasState {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  t=%.2fs", m.state.Time)))
	}
	sb.WriteString("\n\n")

	// Wheel directions
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n\n")

	if m.hasState {
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			renderWheels(m.state),
			"  ",
			renderStatus(m.state),
		))
		sb.WriteString("\n")
	}

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	logLines := statusStyle.Render(keyHelp)
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for i, w := range robot.Wheels() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(wheelColors[i%len(wheelColors)])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+w.Name)
	}
	return strings.Join(items, "  ")
}

func renderWheels(st robot.State) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(st.Wheels))
	for _, w := range st.Wheels {
		locked := ""
		if w.Locked {
			locked = "locked"
		}
		rows = append(rows, []string{
			w.Name,
			fmt.Sprintf("%.0f", w.Direction),
			fmt.Sprintf("%.0f", w.Setpoint),
			fmt.Sprintf("%+.2f", w.Percent),
			locked,
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Wheel", "Dir", "Set", "Drive", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

func renderStatus(st robot.State) string {
	var lines []string
	e := st.Estimate
	lines = append(lines,
		fmt.Sprintf("pose     (%.2f, %.2f) m  %s", e.Position.X, e.Position.Y, e.Quality),
		fmt.Sprintf("heading  %.1f°", st.Heading),
		fmt.Sprintf("nearest  marker %d", st.Nearest.ID),
		fmt.Sprintf("arm goal (%.1f, %.1f) cm", st.ArmGoal.X, st.ArmGoal.Y),
		fmt.Sprintf("hand     (%.1f, %.1f) cm", st.ArmPosition.X, st.ArmPosition.Y),
	)

	flags := []string{}
	if st.Halted {
		flags = append(flags, warnStyle.Render("HALTED"))
	}
	if st.ArmZeroed {
		flags = append(flags, okStyle.Render("zeroed"))
	} else {
		flags = append(flags, warnStyle.Render("not zeroed"))
	}
	if st.ArmAtGoal {
		flags = append(flags, okStyle.Render("at goal"))
	}
	if st.ArmEndangered {
		flags = append(flags, warnStyle.Render("OVERCURRENT"))
	}
	if st.HasPiece {
		flags = append(flags, okStyle.Render("piece"))
	}
	lines = append(lines, strings.Join(flags, " "))
	return strings.Join(lines, "\n")
}
