package robot

import "time"

// maxStep caps the time one Advance may integrate over, so a stalled
// loop cannot make a joint jump.
const maxStep = 500 * time.Millisecond

// Integrator turns joint velocity setpoints into position setpoints on the
// normalized [-100, 100] scale. Scale converts one velocity unit into
// normalized units per second.
type Integrator struct {
	Scale float64

	positions map[JointName]float64
	last      map[JointName]time.Time
}

// NewIntegrator starts every joint at the given positions, or 0 if missing.
func NewIntegrator(scale float64, start map[JointName]float64) *Integrator {
	in := &Integrator{
		Scale:     scale,
		positions: make(map[JointName]float64, len(AllJoints())),
		last:      make(map[JointName]time.Time, len(AllJoints())),
	}
	for _, name := range AllJoints() {
		in.positions[name] = start[name]
	}
	return in
}

// Advance moves joint name by velocity over the time since its previous
// Advance and returns the new position. The first call only records now.
func (in *Integrator) Advance(name JointName, velocity float64, now time.Time) float64 {
	last, seen := in.last[name]
	in.last[name] = now
	if !seen {
		return in.positions[name]
	}

	dt := now.Sub(last)
	if dt <= 0 {
		return in.positions[name]
	}
	dt = min(dt, maxStep)

	pos := in.positions[name] + velocity*in.Scale*dt.Seconds()
	pos = min(max(pos, -100), 100)
	in.positions[name] = pos
	return pos
}

// Position returns the current setpoint of joint name.
func (in *Integrator) Position(name JointName) float64 {
	return in.positions[name]
}
