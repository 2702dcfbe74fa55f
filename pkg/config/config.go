// Package config loads and saves the keyteleop YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/keyteleop/pkg/robot"
	"github.com/gwillem/keyteleop/pkg/sink"
	"github.com/gwillem/keyteleop/pkg/teleop"
)

const DefaultConfigFile = "keyteleop.yaml"

// Sink names accepted in Config.Sinks.
const (
	SinkLog  = "log"
	SinkMQTT = "mqtt"
	SinkArm  = "arm"
)

var knownSinks = []string{SinkLog, SinkMQTT, SinkArm}

// Config is the on-disk configuration.
type Config struct {
	Limits   LimitsConfig `yaml:"limits"`
	Tick     Duration     `yaml:"tick"`
	Shutdown string       `yaml:"shutdown"` // hold or zero
	Sinks    []string     `yaml:"sinks"`
	Log      LogConfig    `yaml:"log"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
	Arm      ArmConfig    `yaml:"arm"`
}

// LimitsConfig mirrors teleop.Limits.
type LimitsConfig struct {
	MaxLinear   float64 `yaml:"max_linear"`
	MaxAngular  float64 `yaml:"max_angular"`
	LinearStep  float64 `yaml:"linear_step"`
	AngularStep float64 `yaml:"angular_step"`
	MaxJoint    float64 `yaml:"max_joint"`
	JointStep   float64 `yaml:"joint_step"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// MQTTConfig holds broker and topic configuration.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	MotionTopic string `yaml:"motion_topic"`
	Joint1Topic string `yaml:"joint1_topic"`
	Joint2Topic string `yaml:"joint2_topic"`
	QoS         byte   `yaml:"qos"`
}

// ArmConfig holds configuration for the manipulator bus.
type ArmConfig struct {
	Port          string            `yaml:"port"`
	VelocityScale float64           `yaml:"velocity_scale"`
	Calibration   robot.Calibration `yaml:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data for both joints.
func (a *ArmConfig) IsCalibrated() bool {
	return a.Calibration.Complete()
}

// Duration is a time.Duration written as a string like "100ms".
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	l := teleop.DefaultLimits()
	return &Config{
		Limits: LimitsConfig{
			MaxLinear:   l.MaxLinear,
			MaxAngular:  l.MaxAngular,
			LinearStep:  l.LinearStep,
			AngularStep: l.AngularStep,
			MaxJoint:    l.MaxJoint,
			JointStep:   l.JointStep,
		},
		Tick:     Duration(teleop.DefaultTick),
		Shutdown: string(teleop.ShutdownHoldJoints),
		Sinks:    []string{SinkLog},
		Log:      LogConfig{Level: "info"},
		MQTT: MQTTConfig{
			ClientID:    "keyteleop",
			MotionTopic: sink.DefaultMotionTopic,
			Joint1Topic: sink.DefaultJoint1Topic,
			Joint2Topic: sink.DefaultJoint2Topic,
		},
		Arm: ArmConfig{VelocityScale: 0.2},
	}
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom reads path over the defaults. Fields missing from the file keep
// their default value.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo writes the configuration as YAML.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TeleopLimits converts the limits section.
func (c *Config) TeleopLimits() teleop.Limits {
	return teleop.Limits{
		MaxLinear:   c.Limits.MaxLinear,
		MaxAngular:  c.Limits.MaxAngular,
		LinearStep:  c.Limits.LinearStep,
		AngularStep: c.Limits.AngularStep,
		MaxJoint:    c.Limits.MaxJoint,
		JointStep:   c.Limits.JointStep,
	}
}

// Teleop returns the controller configuration.
func (c *Config) Teleop() (teleop.Config, error) {
	policy, err := teleop.ParseShutdownPolicy(c.Shutdown)
	if err != nil {
		return teleop.Config{}, err
	}
	return teleop.Config{
		Limits:   c.TeleopLimits(),
		Tick:     time.Duration(c.Tick),
		Shutdown: policy,
	}, nil
}

// SinkMQTTConfig converts the mqtt section.
func (c *Config) SinkMQTTConfig() sink.MQTTConfig {
	return sink.MQTTConfig{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		MotionTopic: c.MQTT.MotionTopic,
		Joint1Topic: c.MQTT.Joint1Topic,
		Joint2Topic: c.MQTT.Joint2Topic,
		QoS:         c.MQTT.QoS,
		Timeout:     time.Duration(c.Tick),
	}
}

// HasSink reports whether name is enabled.
func (c *Config) HasSink(name string) bool {
	return slices.Contains(c.Sinks, name)
}

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error

	limits := c.TeleopLimits()
	if err := limits.Validate(); err != nil {
		errs = append(errs, err)
	}
	if limits.LinearStep > limits.MaxLinear {
		errs = append(errs, fmt.Errorf("linear step %v exceeds max linear %v", limits.LinearStep, limits.MaxLinear))
	}
	if limits.AngularStep > limits.MaxAngular {
		errs = append(errs, fmt.Errorf("angular step %v exceeds max angular %v", limits.AngularStep, limits.MaxAngular))
	}
	if limits.JointStep > limits.MaxJoint {
		errs = append(errs, fmt.Errorf("joint step %v exceeds max joint %v", limits.JointStep, limits.MaxJoint))
	}

	tick := time.Duration(c.Tick)
	if tick < 10*time.Millisecond || tick > time.Second {
		errs = append(errs, fmt.Errorf("tick %v outside [10ms, 1s]", tick))
	}

	if _, err := teleop.ParseShutdownPolicy(c.Shutdown); err != nil {
		errs = append(errs, err)
	}

	if len(c.Sinks) == 0 {
		errs = append(errs, errors.New("no sinks configured"))
	}
	for _, s := range c.Sinks {
		if !slices.Contains(knownSinks, s) {
			errs = append(errs, fmt.Errorf("unknown sink %q", s))
		}
	}
	if c.HasSink(SinkMQTT) && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt sink enabled but mqtt.broker is empty"))
	}
	if c.HasSink(SinkArm) {
		if c.Arm.Port == "" {
			errs = append(errs, errors.New("arm sink enabled but arm.port is empty, run 'keyteleop setup'"))
		} else if !c.Arm.IsCalibrated() {
			errs = append(errs, errors.New("arm sink enabled but arm is not calibrated, run 'keyteleop setup'"))
		}
		if c.Arm.VelocityScale <= 0 {
			errs = append(errs, fmt.Errorf("arm velocity scale must be positive, got %v", c.Arm.VelocityScale))
		}
	}

	return errors.Join(errs...)
}
