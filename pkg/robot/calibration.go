package robot

// JointCalibration holds calibration data for a single joint servo.
type JointCalibration struct {
	ID        int `yaml:"id" json:"id"`
	DriveMode int `yaml:"drive_mode" json:"drive_mode"` // 1 inverts direction
	RangeMin  int `yaml:"range_min" json:"range_min"`
	RangeMax  int `yaml:"range_max" json:"range_max"`
}

// Calibration holds calibration data for all joints, keyed by joint name.
type Calibration map[JointName]JointCalibration

// DefaultCalibration assumes servo IDs 1 and 2 with the full STS range.
func DefaultCalibration() Calibration {
	return Calibration{
		Joint1: {ID: 1, RangeMin: 0, RangeMax: 4095},
		Joint2: {ID: 2, RangeMin: 0, RangeMax: 4095},
	}
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c JointCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	norm := (float64(raw-c.RangeMin)/rangeSize)*200 - 100
	if c.DriveMode == 1 {
		norm = -norm
	}
	return norm
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
// Values outside the range are clamped.
func (c JointCalibration) Denormalize(norm float64) int {
	norm = min(max(norm, -100), 100)
	if c.DriveMode == 1 {
		norm = -norm
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// IDs returns the servo IDs for all joints in the calibration.
func (c Calibration) IDs() []int {
	ids := make([]int, 0, len(c))
	// AllJoints keeps the order stable
	for _, name := range AllJoints() {
		if jc, ok := c[name]; ok {
			ids = append(ids, jc.ID)
		}
	}
	return ids
}

// ByID returns joint name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (JointName, JointCalibration, bool) {
	for name, jc := range c {
		if jc.ID == id {
			return name, jc, true
		}
	}
	return "", JointCalibration{}, false
}

// Complete reports whether every joint has a usable range.
func (c Calibration) Complete() bool {
	for _, name := range AllJoints() {
		jc, ok := c[name]
		if !ok || jc.RangeMax <= jc.RangeMin {
			return false
		}
	}
	return true
}
