package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/keyteleop/pkg/config"
	"github.com/gwillem/keyteleop/pkg/keyboard"
	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/robot"
	"github.com/gwillem/keyteleop/pkg/sink"
	"github.com/gwillem/keyteleop/pkg/teleop"
)

type RunCommand struct {
	Tick     time.Duration `long:"tick" description:"Poll timeout and publish period (overrides config)"`
	Shutdown string        `long:"shutdown" choice:"hold" choice:"zero" description:"Joint setpoints on exit (overrides config)"`
	Sinks    []string      `long:"sink" choice:"log" choice:"mqtt" choice:"arm" description:"Command sink, repeatable (overrides config)"`
	Broker   string        `long:"broker" description:"MQTT broker URL (overrides config)"`
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", opts.Config, err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	tc, err := cfg.Teleop()
	if err != nil {
		return err
	}

	// Fails here, before anything is published, if stdin is not a usable terminal.
	keys, err := keyboard.Open(os.Stdin)
	if err != nil {
		return fmt.Errorf("open keyboard: %w", err)
	}
	defer keys.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctrl, err := teleop.NewController(keys, out, logger, tc)
	if err != nil {
		return errors.Join(err, out.Close())
	}

	fmt.Print(renderBanner(cfg))

	// Run closes keys and sinks on every exit path.
	return ctrl.Run(ctx)
}

func (c *RunCommand) apply(cfg *config.Config) {
	if c.Tick > 0 {
		cfg.Tick = config.Duration(c.Tick)
	}
	if c.Shutdown != "" {
		cfg.Shutdown = c.Shutdown
	}
	if len(c.Sinks) > 0 {
		cfg.Sinks = c.Sinks
	}
	if c.Broker != "" {
		cfg.MQTT.Broker = c.Broker
	}
}

// buildSinks opens every configured sink. If one fails, those already
// opened are closed again.
func buildSinks(ctx context.Context, cfg *config.Config, logger log.Logger) (*sink.Multi, error) {
	var sinks []teleop.CommandSink
	fail := func(err error) (*sink.Multi, error) {
		return nil, errors.Join(err, sink.NewMulti(sinks...).Close())
	}

	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, sink.NewLog(logger))

		case config.SinkMQTT:
			s, err := sink.DialMQTT(cfg.SinkMQTTConfig(), logger)
			if err != nil {
				return fail(fmt.Errorf("mqtt sink: %w", err))
			}
			sinks = append(sinks, s)

		case config.SinkArm:
			s, err := openArmSink(ctx, cfg, logger)
			if err != nil {
				return fail(fmt.Errorf("arm sink: %w", err))
			}
			sinks = append(sinks, s)

		default:
			return fail(fmt.Errorf("unknown sink %q", name))
		}
	}

	return sink.NewMulti(sinks...), nil
}

func openArmSink(ctx context.Context, cfg *config.Config, logger log.Logger) (*sink.Manipulator, error) {
	arm, err := robot.NewArm(robot.ArmConfig{
		Port:        cfg.Arm.Port,
		Calibration: cfg.Arm.Calibration,
	})
	if err != nil {
		return nil, err
	}

	start, err := arm.ReadPositions(ctx)
	if err != nil {
		arm.Close()
		return nil, err
	}
	if err := arm.Enable(ctx); err != nil {
		arm.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}
	logger.Infof("Arm on %s: torque enabled at joint1 %.1f, joint2 %.1f",
		cfg.Arm.Port, start[robot.Joint1], start[robot.Joint2])

	return sink.NewManipulator(arm, cfg.Arm.VelocityScale, start, logger), nil
}

// renderBanner prints the key legend shown before the loop starts.
func renderBanner(cfg *config.Config) string {
	k := keyStyle.Render
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Keyboard teleoperation"))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("---------------------------"))
	sb.WriteString("\n")
	sb.WriteString("Moving around:\n")
	fmt.Fprintf(&sb, "        %s\n", k("w"))
	fmt.Fprintf(&sb, "    %s   %s   %s\n", k("a"), k("s"), k("d"))
	fmt.Fprintf(&sb, "        %s\n\n", k("x"))

	for _, b := range teleop.Bindings {
		fmt.Fprintf(&sb, "  %s %s\n", k(fmt.Sprintf("%-6s", b.Key)), b.Help)
	}

	l := cfg.TeleopLimits()
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(fmt.Sprintf(
		"linear ±%g step %g | angular ±%g step %g | joints ±%g step %g",
		l.MaxLinear, l.LinearStep, l.MaxAngular, l.AngularStep, l.MaxJoint, l.JointStep)))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(fmt.Sprintf(
		"publishing every %v to %s, joints on exit: %s",
		time.Duration(cfg.Tick), strings.Join(cfg.Sinks, ", "), cfg.Shutdown)))
	sb.WriteString("\n\n")

	return sb.String()
}
