// Package teleop turns operator keystrokes into bounded velocity setpoints
// for a mobile base and a two-joint manipulator.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gwillem/keyteleop/pkg/log"
)

// KeySource supplies operator input.
type KeySource interface {
	// Poll waits at most timeout for one key and returns NoKey if none arrived.
	Poll(timeout time.Duration) (Key, error)
}

// CommandSink receives the setpoints every tick.
type CommandSink interface {
	PublishMotion(linear, angular float64) error
	// PublishJoint publishes the velocity of joint 1 or 2.
	PublishJoint(index int, velocity float64) error
}

// ShutdownPolicy decides what happens to the joint setpoints on stop.
type ShutdownPolicy string

const (
	// ShutdownHoldJoints leaves the joints at their last commanded velocity.
	ShutdownHoldJoints ShutdownPolicy = "hold"
	// ShutdownZeroJoints zeroes and publishes both joints after the base stops.
	ShutdownZeroJoints ShutdownPolicy = "zero"
)

// ParseShutdownPolicy accepts "hold" or "zero". Empty means hold.
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch ShutdownPolicy(s) {
	case "", ShutdownHoldJoints:
		return ShutdownHoldJoints, nil
	case ShutdownZeroJoints:
		return ShutdownZeroJoints, nil
	}
	return "", fmt.Errorf("unknown shutdown policy %q (want hold or zero)", s)
}

// Phase is the controller lifecycle state.
type Phase int

const (
	Running Phase = iota
	Stopping
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrStopped is returned by Run and Step once the controller has stopped.
var ErrStopped = errors.New("controller stopped")

// Config holds configuration for the controller.
type Config struct {
	Limits   Limits
	Tick     time.Duration // poll timeout, also the publish period
	Shutdown ShutdownPolicy
}

// Controller owns the velocity state and drives the publish cadence.
// It is not safe for concurrent use; Run is the only actor.
type Controller struct {
	keys     KeySource
	sink     CommandSink
	logger   log.Logger
	limits   Limits
	tick     time.Duration
	shutdown ShutdownPolicy

	state State
	phase Phase
	ticks uint64

	stopOnce sync.Once
	stopErr  error
}

// NewController creates a controller with all setpoints at zero.
func NewController(keys KeySource, sink CommandSink, logger log.Logger, cfg Config) (*Controller, error) {
	if keys == nil {
		return nil, errors.New("key source is required")
	}
	if sink == nil {
		return nil, errors.New("command sink is required")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	policy, err := ParseShutdownPolicy(string(cfg.Shutdown))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}

	return &Controller{
		keys:     keys,
		sink:     sink,
		logger:   logger,
		limits:   cfg.Limits,
		tick:     cfg.Tick,
		shutdown: policy,
	}, nil
}

// State returns the current setpoints.
func (c *Controller) State() State {
	return c.state
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Tick returns the poll timeout.
func (c *Controller) Tick() time.Duration {
	return c.tick
}

// Ticks returns how many ticks have been published.
func (c *Controller) Ticks() uint64 {
	return c.ticks
}

// Run drives the control loop until the exit key is pressed, ctx is
// cancelled or a collaborator fails. The stop sequence always runs before
// Run returns. Cancellation is a normal exit and returns nil.
func (c *Controller) Run(ctx context.Context) (err error) {
	if c.phase != Running {
		return ErrStopped
	}
	defer func() {
		err = errors.Join(err, c.Stop())
	}()

	c.logger.Infof("Teleoperation started, publishing every %v", c.tick)

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Interrupted, stopping")
			return nil
		default:
		}

		exit, err := c.Step()
		if err != nil {
			c.logger.Errorf("Stopping after failure: %v", err)
			return err
		}
		if exit {
			c.logger.Infof("Exit key pressed, stopping")
			return nil
		}
	}
}

// Step runs one tick: poll, update, publish. It reports whether the exit
// key was received.
func (c *Controller) Step() (exit bool, err error) {
	if c.phase != Running {
		return false, ErrStopped
	}

	key, err := c.keys.Poll(c.tick)
	if err != nil {
		return false, fmt.Errorf("poll key: %w", err)
	}

	action := ActionFor(key)
	c.state = c.limits.Apply(c.state, action)
	c.report(key, action)

	if err := c.publish(); err != nil {
		return false, err
	}
	c.ticks++

	return action == ActionExit, nil
}

func (c *Controller) report(key Key, action Action) {
	switch action {
	case ActionLinearUp, ActionLinearDown, ActionAngularUp, ActionAngularDown, ActionStop:
		c.logger.Infof("Current: linear %.2f, angular %.2f", c.state.Linear, c.state.Angular)
	case ActionJointsUp, ActionJointsDown:
		c.logger.Infof("Joints: joint1 %.2f, joint2 %.2f", c.state.Joint1, c.state.Joint2)
	case ActionNone:
		if key != NoKey {
			c.logger.Debugf("Ignoring key %s", key)
		}
	}
}

func (c *Controller) publish() error {
	if err := c.sink.PublishMotion(c.state.Linear, c.state.Angular); err != nil {
		return fmt.Errorf("publish motion: %w", err)
	}
	if err := c.sink.PublishJoint(1, c.state.Joint1); err != nil {
		return fmt.Errorf("publish joint 1: %w", err)
	}
	if err := c.sink.PublishJoint(2, c.state.Joint2); err != nil {
		return fmt.Errorf("publish joint 2: %w", err)
	}
	return nil
}

// Stop zeroes the base, applies the joint shutdown policy and closes the
// key source and sink when they implement io.Closer. Only the first call
// does anything; later calls return the same error.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.phase = Stopping
		c.stopErr = c.stop()
		c.phase = Stopped
		if c.stopErr != nil {
			c.logger.Errorf("Stop sequence incomplete: %v", c.stopErr)
		}
		c.logger.Infof("Teleoperation stopped")
	})
	return c.stopErr
}

func (c *Controller) stop() error {
	var errs []error

	c.state.Linear = 0
	c.state.Angular = 0
	if err := c.sink.PublishMotion(0, 0); err != nil {
		errs = append(errs, fmt.Errorf("publish stop: %w", err))
	}

	switch c.shutdown {
	case ShutdownZeroJoints:
		c.state.Joint1 = 0
		c.state.Joint2 = 0
		for i := 1; i <= 2; i++ {
			if err := c.sink.PublishJoint(i, 0); err != nil {
				errs = append(errs, fmt.Errorf("publish joint %d stop: %w", i, err))
			}
		}
	default:
		if c.state.Joint1 != 0 || c.state.Joint2 != 0 {
			c.logger.Warnf("Joints left at %.2f/%.2f (shutdown policy %s)",
				c.state.Joint1, c.state.Joint2, c.shutdown)
		}
	}

	if closer, ok := c.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	if closer, ok := c.keys.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close key source: %w", err))
		}
	}
	return errors.Join(errs...)
}
