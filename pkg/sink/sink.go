// Package sink delivers teleop setpoints to their consumers.
package sink

import (
	"errors"
	"fmt"
	"io"

	"github.com/gwillem/keyteleop/pkg/teleop"
)

var _ teleop.CommandSink = (*Multi)(nil)

// Multi fans every command out to several sinks in order. A failure in one
// sink does not stop delivery to the others; the errors are joined.
type Multi struct {
	sinks []teleop.CommandSink
}

// NewMulti returns a sink that publishes to all of sinks.
func NewMulti(sinks ...teleop.CommandSink) *Multi {
	return &Multi{sinks: sinks}
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) PublishMotion(linear, angular float64) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishMotion(linear, angular); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) PublishJoint(index int, velocity float64) error {
	if index < 1 || index > 2 {
		return fmt.Errorf("joint index %d out of range", index)
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishJoint(index, velocity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped sink that implements io.Closer.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
