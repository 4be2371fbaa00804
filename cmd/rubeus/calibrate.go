package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct {
	Port string `short:"p" long:"port" description:"Serial port of the steering encoder servos (default: ask)"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Rubeus Calibrate"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	port := c.Port
	if port == "" {
		port = cfg.ServoPort
	}
	if port == "" {
		if port, err = choosePort(); err != nil {
			return err
		}
	}

	cal := encoderCalibration(cfg)
	if err := checkEncoders(port, cal); err != nil {
		return err
	}

	servos, err := robot.OpenServoBus(port, cal, logger)
	if err != nil {
		return fmt.Errorf("open servos on %s: %w", port, err)
	}
	defer servos.Close()

	// Disable torque so the wheels turn freely
	ctx := context.Background()
	if err := servos.Disable(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}

	fmt.Println(subHeaderStyle.Render("Point every wheel forward"))
	fmt.Println("Turn each wheel by hand until it points straight ahead, bevel gear on the same side.")
	fmt.Println()

	p := tea.NewProgram(newCalibrationModel(cfg, servos))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if finalModel.(calibrationModel).aborted {
		fmt.Println("Calibration aborted, nothing saved.")
		return nil
	}
	if err := servos.Refresh(ctx); err != nil {
		return err
	}

	for _, w := range robot.Wheels() {
		ticks := servos.Ticks(w.Encoder)
		if err := cfg.SetEncoderOffset(w.Name, ticks); err != nil {
			return err
		}
		fmt.Printf("  %-12s %6.0f\n", w.Name, ticks)
	}
	cfg.ServoPort = port

	save := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Save offsets to %s?", opts.Config)).
				Affirmative("Save").
				Negative("Discard").
				Value(&save),
		),
	)
	if err := form.Run(); err != nil || !save {
		fmt.Println("Nothing saved.")
		return nil
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Calibration complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	return nil
}

// choosePort lists serial ports and asks which one carries the servos.
func choosePort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list ports: %w", err)
	}
	ports = slices.DeleteFunc(ports, func(p string) bool {
		// Skip Bluetooth ports on macOS
		return strings.Contains(p, "Bluetooth")
	})

	switch len(ports) {
	case 0:
		return "", errors.New("no serial ports found; is the servo adapter plugged in?")
	case 1:
		fmt.Printf("Using %s\n\n", ports[0])
		return ports[0], nil
	}

	var options []huh.Option[string]
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}
	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port carries the steering encoders?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port, nil
}

// checkEncoders scans the bus and reports encoders that do not answer.
func checkEncoders(port string, cal robot.Calibration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	ids := cal.MotorIDs()
	if len(ids) == 0 {
		return errors.New("no encoders configured")
	}
	found, err := bus.Scan(ctx, slices.Min(ids), slices.Max(ids))
	if err != nil {
		return fmt.Errorf("scan %s: %w", port, err)
	}

	present := make(map[int]bool, len(found))
	for _, s := range found {
		present[s.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !present[id] {
			name, _, _ := cal.ByID(id)
			missing = append(missing, fmt.Sprintf("%s (id %d)", name, id))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no answer from %s", strings.Join(missing, ", "))
	}
	fmt.Printf("  Found %d encoders on %s\n\n", len(ids), port)
	return nil
}

// Calibration TUI model
type calibrationModel struct {
	cfg      *robot.Config
	servos   *robot.ServoBus
	err      error
	aborted  bool
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(cfg *robot.Config, servos *robot.ServoBus) calibrationModel {
	return calibrationModel{cfg: cfg, servos: servos}
}

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
		case "enter":
			m.quitting = true
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.aborted = true
			return m, tea.Quit
		}

	case tickMsg:
		m.err = m.servos.Refresh(context.Background())
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	// Table styles
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableWheelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	wheels := robot.Wheels()
	rows := make([][]string, 0, len(wheels))
	for _, w := range wheels {
		raw, _ := m.servos.Raw(w.Encoder)
		ticks := m.servos.Ticks(w.Encoder)
		wc, _ := m.cfg.Wheel(w.Name)
		rows = append(rows, []string{
			w.Name,
			fmt.Sprintf("%d", raw),
			fmt.Sprintf("%.0f", ticks),
			fmt.Sprintf("%.0f", wc.EncoderOffset),
			fmt.Sprintf("%+.0f", motor.Loopize(ticks, wc.EncoderOffset, robot.EncoderCircumference)),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Wheel", "Raw", "Ticks", "Saved offset", "Drift").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableWheelStyle
			case 2:
				return tableCurrentStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("Press Enter to record, q to abort"))

	return sb.String()
}
