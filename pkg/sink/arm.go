package sink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/robot"
	"github.com/gwillem/keyteleop/pkg/teleop"
)

// JointWriter is the part of robot.Arm the manipulator sink needs.
type JointWriter interface {
	WritePositions(ctx context.Context, positions map[robot.JointName]float64) error
}

var _ teleop.CommandSink = (*Manipulator)(nil)

// Manipulator drives position-controlled joint servos from velocity
// setpoints. Motion commands are ignored. Both joints are written with one
// sync write when joint 2 is published.
type Manipulator struct {
	arm        JointWriter
	integrator *robot.Integrator
	logger     log.Logger
	timeout    time.Duration
	now        func() time.Time

	pending map[robot.JointName]float64
}

// NewManipulator creates the sink. start holds the current joint positions
// so the first write does not move the arm.
func NewManipulator(arm JointWriter, scale float64, start map[robot.JointName]float64, logger log.Logger) *Manipulator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manipulator{
		arm:        arm,
		integrator: robot.NewIntegrator(scale, start),
		logger:     log.With(logger, "sink", "arm"),
		timeout:    teleop.DefaultTick,
		now:        time.Now,
		pending:    make(map[robot.JointName]float64, 2),
	}
}

func (m *Manipulator) PublishMotion(linear, angular float64) error {
	return nil
}

func (m *Manipulator) PublishJoint(index int, velocity float64) error {
	name, err := robot.JointByIndex(index)
	if err != nil {
		return err
	}
	m.pending[name] = m.integrator.Advance(name, velocity, m.now())
	if index != len(robot.AllJoints()) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.arm.WritePositions(ctx, maps.Clone(m.pending)); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus when the writer supports it.
func (m *Manipulator) Close() error {
	var errs []error
	if d, ok := m.arm.(interface{ Disable(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := d.Disable(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disable torque: %w", err))
		} else {
			m.logger.Infof("Arm torque disabled")
		}
	}
	if c, ok := m.arm.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	return errors.Join(errs...)
}
