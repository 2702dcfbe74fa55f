package teleop

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Limits bounds the velocity state and sets the step applied per key press.
type Limits struct {
	MaxLinear   float64
	MaxAngular  float64
	LinearStep  float64
	AngularStep float64
	MaxJoint    float64
	JointStep   float64
}

// DefaultLimits are the bounds the keyboard controller ships with.
func DefaultLimits() Limits {
	return Limits{
		MaxLinear:   150,
		MaxAngular:  150,
		LinearStep:  50,
		AngularStep: 50,
		MaxJoint:    150,
		JointStep:   50,
	}
}

// DefaultTick is the poll timeout and therefore the publish period.
const DefaultTick = 100 * time.Millisecond

// Validate reports limits that cannot produce a usable controller.
func (l Limits) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			errs = append(errs, fmt.Errorf("%s must be finite, got %v", name, v))
		case v <= 0:
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	check("max linear", l.MaxLinear)
	check("max angular", l.MaxAngular)
	check("linear step", l.LinearStep)
	check("angular step", l.AngularStep)
	check("max joint", l.MaxJoint)
	check("joint step", l.JointStep)
	return errors.Join(errs...)
}

// State is the set of velocity setpoints the controller publishes every tick.
// Joint1 and Joint2 always move together.
type State struct {
	Linear  float64
	Angular float64
	Joint1  float64
	Joint2  float64
}

func (s State) String() string {
	return fmt.Sprintf("linear=%.2f angular=%.2f joint1=%.2f joint2=%.2f",
		s.Linear, s.Angular, s.Joint1, s.Joint2)
}

func constrain(v, low, high float64) float64 {
	return min(max(v, low), high)
}

// Apply returns the state that results from action a.
func (l Limits) Apply(s State, a Action) State {
	switch a {
	case ActionLinearUp:
		s.Linear = constrain(s.Linear+l.LinearStep, -l.MaxLinear, l.MaxLinear)
	case ActionLinearDown:
		s.Linear = constrain(s.Linear-l.LinearStep, -l.MaxLinear, l.MaxLinear)
	case ActionAngularUp:
		s.Angular = constrain(s.Angular+l.AngularStep, -l.MaxAngular, l.MaxAngular)
	case ActionAngularDown:
		s.Angular = constrain(s.Angular-l.AngularStep, -l.MaxAngular, l.MaxAngular)
	case ActionStop:
		s.Linear = 0
		s.Angular = 0
	case ActionJointsUp:
		s.Joint1 = constrain(s.Joint1+l.JointStep, -l.MaxJoint, l.MaxJoint)
		s.Joint2 = constrain(s.Joint2+l.JointStep, -l.MaxJoint, l.MaxJoint)
	case ActionJointsDown:
		s.Joint1 = constrain(s.Joint1-l.JointStep, -l.MaxJoint, l.MaxJoint)
		s.Joint2 = constrain(s.Joint2-l.JointStep, -l.MaxJoint, l.MaxJoint)
	}
	return s
}
