package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gwillem/keyteleop/pkg/config"
	"github.com/gwillem/keyteleop/pkg/sink"
)

type MonitorCommand struct {
	Broker     string `long:"broker" description:"MQTT broker URL (overrides config)"`
	StaleAfter int    `long:"stale-after" default:"3" description:"Ticks without a motion command before it is reported stale"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Series names, in legend order.
const (
	seriesLinear  = "linear"
	seriesAngular = "angular"
	seriesJoint1  = "joint1"
	seriesJoint2  = "joint2"
)

var allSeries = []string{seriesLinear, seriesAngular, seriesJoint1, seriesJoint2}

var seriesColors = map[string]string{
	seriesLinear:  "196", // red
	seriesAngular: "226", // yellow
	seriesJoint1:  "46",  // green
	seriesJoint2:  "51",  // cyan
}

var (
	chartStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	staleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	liveStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

// sampleMsg carries values decoded from one MQTT message.
type sampleMsg struct {
	values map[string]float64
	at     time.Time
}

type logMsg string
type tickMsg time.Time

type monitorModel struct {
	samples    <-chan sampleMsg
	logs       <-chan string
	chart      *streamlinechart.Model
	broker     string
	tick       time.Duration
	staleAfter time.Duration
	width      int      // terminal width
	height     int      // terminal height
	lines      []string // last N log messages
	latest     map[string]float64
	lastMotion time.Time
	quitting   bool
}

func waitForSample(ch <-chan sampleMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func waitForLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ch)
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *monitorModel) addLog(msg string) {
	m.lines = append(m.lines, msg)
	if len(m.lines) > maxLogs {
		m.lines = m.lines[len(m.lines)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *monitorModel) stale(now time.Time) bool {
	return m.lastMotion.IsZero() || now.Sub(m.lastMotion) > m.staleAfter
}

func newMonitorModel(cfg *config.Config, samples <-chan sampleMsg, logs <-chan string, staleTicks int) monitorModel {
	limit := max(cfg.Limits.MaxLinear, cfg.Limits.MaxAngular, cfg.Limits.MaxJoint)
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-limit, limit),
	)
	for _, name := range allSeries {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	tick := time.Duration(cfg.Tick)
	return monitorModel{
		samples:    samples,
		logs:       logs,
		chart:      &chart,
		broker:     cfg.MQTT.Broker,
		tick:       tick,
		staleAfter: time.Duration(max(staleTicks, 1)) * tick,
		latest:     make(map[string]float64, len(allSeries)),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSample(m.samples),
		waitForLog(m.logs),
		tickEvery(m.tick),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case sampleMsg:
		for name, v := range msg.values {
			m.latest[name] = v
			m.chart.PushDataSet(name, v)
			if name == seriesLinear {
				m.lastMotion = msg.at
			}
		}
		m.chart.DrawAll()
		return m, waitForSample(m.samples)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)

	case tickMsg:
		// Redraw so the stale indicator updates without traffic.
		return m, tickEvery(m.tick)
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("keyteleop monitor"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf(" - %s", m.broker)))
	if m.stale(time.Now()) {
		sb.WriteString("  " + staleStyle.Render("STALE"))
	} else {
		sb.WriteString("  " + liveStyle.Render("LIVE"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend(m.latest))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.lines) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.lines, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(latest map[string]float64) string {
	var items []string
	for _, name := range allSeries {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name])).Bold(true)
		items = append(items, fmt.Sprintf("%s %s %7.2f", colorStyle.Render("━━"), name, latest[name]))
	}
	return strings.Join(items, "  ")
}

// decodeSample turns a payload from one of the command topics into chart values.
func decodeSample(cfg config.MQTTConfig, topic string, payload []byte) (map[string]float64, error) {
	switch topic {
	case cfg.MotionTopic:
		var t sink.Twist
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		return map[string]float64{seriesLinear: t.Linear.X, seriesAngular: t.Angular.Z}, nil
	case cfg.Joint1Topic, cfg.Joint2Topic:
		var f sink.Float64
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		name := seriesJoint1
		if topic == cfg.Joint2Topic {
			name = seriesJoint2
		}
		return map[string]float64{name: f.Data}, nil
	}
	return nil, fmt.Errorf("unexpected topic %q", topic)
}

func (c *MonitorCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Broker != "" {
		cfg.MQTT.Broker = c.Broker
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("no MQTT broker configured, set mqtt.broker in %s or pass --broker", opts.Config)
	}

	samples := make(chan sampleMsg, 64)
	logs := make(chan string, 16)
	logf := func(format string, args ...any) {
		msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
		select {
		case logs <- msg:
		default:
			// Drop if channel full
		}
	}

	topics := map[string]byte{
		cfg.MQTT.MotionTopic: cfg.MQTT.QoS,
		cfg.MQTT.Joint1Topic: cfg.MQTT.QoS,
		cfg.MQTT.Joint2Topic: cfg.MQTT.QoS,
	}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		values, err := decodeSample(cfg.MQTT, msg.Topic(), msg.Payload())
		if err != nil {
			logf("Decode error: %v", err)
			return
		}
		select {
		case samples <- sampleMsg{values: values, at: time.Now()}:
		default:
		}
	}

	mopts := mqtt.NewClientOptions()
	mopts.AddBroker(cfg.MQTT.Broker)
	mopts.SetClientID(cfg.MQTT.ClientID + "-monitor")
	mopts.SetAutoReconnect(true)
	mopts.OnConnect = func(client mqtt.Client) {
		// Subscribe on every (re)connect so a broker restart is survived.
		if token := client.SubscribeMultiple(topics, handler); token.Wait() && token.Error() != nil {
			logf("Subscribe error: %v", token.Error())
			return
		}
		logf("Subscribed to %s", strings.Join(slices.Sorted(maps.Keys(topics)), ", "))
	}
	mopts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logf("Connection lost: %v", err)
	}

	client := mqtt.NewClient(mopts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", cfg.MQTT.Broker, token.Error())
	}
	defer client.Disconnect(250)

	p := tea.NewProgram(newMonitorModel(cfg, samples, logs, c.StaleAfter), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
