package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// ArmConfig holds what is needed to open the manipulator bus.
type ArmConfig struct {
	Port        string
	Calibration Calibration
}

// Arm represents the two-joint manipulator.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm opens the serial bus and creates a servo group for the calibrated joints.
func NewArm(cfg ArmConfig) (*Arm, error) {
	if cfg.Port == "" {
		return nil, errors.New("arm port is not configured")
	}
	if !cfg.Calibration.Complete() {
		return nil, errors.New("arm is not calibrated")
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cfg.Calibration.IDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cfg.Calibration,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on both joints.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on both joints.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadPositions reads current joint positions, normalized to [-100, 100].
func (a *Arm) ReadPositions(ctx context.Context) (map[JointName]float64, error) {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	positions := make(map[JointName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(raw)
	}

	return positions, nil
}

// WritePositions writes normalized target positions with a single sync write.
func (a *Arm) WritePositions(ctx context.Context, positions map[JointName]float64) error {
	rawPositions := make(feetech.PositionMap, len(positions))
	for name, norm := range positions {
		cal, ok := a.calibration[name]
		if !ok {
			continue
		}
		rawPositions[cal.ID] = cal.Denormalize(norm)
	}

	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	return nil
}
