package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/keyteleop/pkg/config"
	"github.com/gwillem/keyteleop/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Joint1ID     int  `long:"joint1-id" default:"1" description:"Servo ID of joint 1"`
	Joint2ID     int  `long:"joint2-id" default:"2" description:"Servo ID of joint 2"`
	InvertJoint1 bool `long:"invert-joint1" description:"Joint 1 turns the wrong way for positive velocities"`
	InvertJoint2 bool `long:"invert-joint2" description:"Joint 2 turns the wrong way for positive velocities"`
}

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println(dimStyle.Render("No serial ports found."))
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func (c *SetupCommand) Execute(args []string) error {
	if c.Joint1ID == c.Joint2ID {
		return fmt.Errorf("joint servo IDs must differ, both are %d", c.Joint1ID)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("keyteleop setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	// Step 1: find the bus carrying both joint servos
	port, err := c.choosePort()
	if err != nil {
		return err
	}
	if port == "" {
		return nil
	}

	// Step 2: record the range of motion
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating Arm ━━━"))
	fmt.Println()
	cal, err := c.calibrate(port)
	if err != nil {
		return err
	}

	cfg.Arm.Port = port
	cfg.Arm.Calibration = cal
	if !cfg.HasSink(config.SinkArm) {
		cfg.Sinks = append(cfg.Sinks, config.SinkArm)
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start driving with: " + headerStyle.Render("keyteleop run"))

	return nil
}

func (c *SetupCommand) ids() []int {
	return []int{c.Joint1ID, c.Joint2ID}
}

func (c *SetupCommand) inverted() []bool {
	return []bool{c.InvertJoint1, c.InvertJoint2}
}

// calibration turns the recorded ranges into per-joint calibration.
func (c *SetupCommand) calibration(joints []robot.JointName, lo, hi map[robot.JointName]int) robot.Calibration {
	cal := make(robot.Calibration, len(joints))
	for i, name := range joints {
		jc := robot.JointCalibration{
			ID:       c.ids()[i],
			RangeMin: lo[name],
			RangeMax: hi[name],
		}
		if c.inverted()[i] {
			jc.DriveMode = 1
		}
		cal[name] = jc
	}
	return cal
}

// choosePort returns the selected port, or "" if the operator skipped.
func (c *SetupCommand) choosePort() (string, error) {
	fmt.Println("Scanning for the arm bus...")
	fmt.Println()

	found := c.findBuses()
	if len(found) == 0 {
		fmt.Printf("No bus with servos %d and %d found.\n", c.Joint1ID, c.Joint2ID)
		fmt.Println("Make sure the arm is connected and powered on.")
		return "", fmt.Errorf("arm not found")
	}
	if len(found) == 1 {
		fmt.Printf("  Using %s\n", found[0])
		return found[0], nil
	}

	var options []huh.Option[string]
	for _, port := range found {
		options = append(options, huh.NewOption(port, port))
	}
	options = append(options, huh.NewOption("Cancel", ""))

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the arm on?").
				Description(fmt.Sprintf("Every listed port answers on servo IDs %d and %d", c.Joint1ID, c.Joint2ID)).
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return "", nil
	}
	return port, nil
}

func (c *SetupCommand) findBuses() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, servos, err := c.connect(port)
		if err != nil {
			continue
		}
		bus.Close()
		fmt.Printf("  Found arm on %s (%d servos)\n", port, len(servos))
		found = append(found, port)
	}
	return found
}

func (c *SetupCommand) connect(port string) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, slices.Max(c.ids()))
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	if !hasServos(servos, c.ids()...) {
		bus.Close()
		return nil, nil, fmt.Errorf("servos %v not found on %s", c.ids(), port)
	}

	return bus, servos, nil
}

func hasServos(servos []feetech.FoundServo, ids ...int) bool {
	present := make(map[int]bool, len(servos))
	for _, s := range servos {
		present[s.ID] = true
	}
	for _, id := range ids {
		if !present[id] {
			return false
		}
	}
	return true
}

func (c *SetupCommand) calibrate(port string) (robot.Calibration, error) {
	bus, servos, err := c.connect(port)
	if err != nil {
		return nil, fmt.Errorf("connect to arm: %w", err)
	}
	defer bus.Close()

	joints := robot.AllJoints()
	servoMap := make(map[robot.JointName]*feetech.Servo, len(joints))
	for i, name := range joints {
		for _, s := range servos {
			if s.ID == c.ids()[i] {
				servoMap[name] = feetech.NewServo(bus, s.ID, s.Model)
			}
		}
	}

	// Disable torque so the joints can be moved by hand
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum position.")
	fmt.Println()

	model := newCalibrationModel(joints, servoMap)
	for _, name := range joints {
		pos, err := servoMap[name].Position(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		model.cur[name] = pos
		model.lo[name] = pos
		model.hi[name] = pos
	}

	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)

	cal := c.calibration(joints, cm.lo, cm.hi)
	if !cal.Complete() {
		return nil, fmt.Errorf("no range recorded for at least one joint")
	}

	fmt.Println()
	fmt.Println("Arm calibrated.")
	return cal, nil
}

// minRange is the raw range below which a joint is shown as not yet explored.
const minRange = 500

type calibrationModel struct {
	joints   []robot.JointName
	servos   map[robot.JointName]*feetech.Servo
	cur      map[robot.JointName]int
	lo       map[robot.JointName]int // lowest reading seen
	hi       map[robot.JointName]int // highest reading seen
	quitting bool
}

func newCalibrationModel(joints []robot.JointName, servos map[robot.JointName]*feetech.Servo) calibrationModel {
	return calibrationModel{
		joints: joints,
		servos: servos,
		cur:    make(map[robot.JointName]int, len(joints)),
		lo:     make(map[robot.JointName]int, len(joints)),
		hi:     make(map[robot.JointName]int, len(joints)),
	}
}

func (m calibrationModel) Init() tea.Cmd {
	return tickEvery(100 * time.Millisecond)
}

// record folds a new reading into the tracked range.
func (m calibrationModel) record(name robot.JointName, pos int) {
	m.cur[name] = pos
	if pos < m.lo[name] {
		m.lo[name] = pos
	}
	if pos > m.hi[name] {
		m.hi[name] = pos
	}
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
		for _, name := range m.joints {
			pos, err := m.servos[name].Position(ctx)
			if err != nil {
				continue
			}
			m.record(name, pos)
		}
		return m, tickEvery(100 * time.Millisecond)
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, name := range m.joints {
		rangeSize := m.hi[name] - m.lo[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.cur[name]),
			fmt.Sprintf("%d", m.lo[name]),
			fmt.Sprintf("%d", m.hi[name]),
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
				return tableJointStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > minRange {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
