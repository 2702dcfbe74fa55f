package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/teleop"
)

// Default topics, named after the ROS topics the base and joint
// controllers listen on.
const (
	DefaultMotionTopic = "cmd_vel"
	DefaultJoint1Topic = "link1_joint_controller/command"
	DefaultJoint2Topic = "link2_joint_controller/command"
)

// Vector3 mirrors geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist mirrors geometry_msgs/Twist. Only Linear.X and Angular.Z are set.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Float64 mirrors std_msgs/Float64.
type Float64 struct {
	Data float64 `json:"data"`
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	MotionTopic string
	Joint1Topic string
	Joint2Topic string
	QoS         byte
	Timeout     time.Duration // publish and connect timeout
}

func (c *MQTTConfig) setDefaults() {
	if c.ClientID == "" {
		c.ClientID = "keyteleop"
	}
	if c.MotionTopic == "" {
		c.MotionTopic = DefaultMotionTopic
	}
	if c.Joint1Topic == "" {
		c.Joint1Topic = DefaultJoint1Topic
	}
	if c.Joint2Topic == "" {
		c.Joint2Topic = DefaultJoint2Topic
	}
	if c.Timeout <= 0 {
		c.Timeout = teleop.DefaultTick
	}
}

var _ teleop.CommandSink = (*MQTT)(nil)

// MQTT publishes commands as JSON to an MQTT broker.
//
// The controller publishes motion first on every tick, so PublishMotion
// opens a deadline of cfg.Timeout that the joint publishes of the same tick
// share.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger log.Logger

	now      func() time.Time
	deadline time.Time
}

// DialMQTT connects to the broker and returns a sink.
func DialMQTT(cfg MQTTConfig, logger log.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	cfg.setDefaults()
	logger = log.With(logger, "sink", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return NewMQTT(client, cfg, logger), nil
}

// NewMQTT wraps an already connected client.
func NewMQTT(client mqtt.Client, cfg MQTTConfig, logger log.Logger) *MQTT {
	cfg.setDefaults()
	if logger == nil {
		logger = log.Discard()
	}
	return &MQTT{client: client, cfg: cfg, logger: logger, now: time.Now}
}

func (m *MQTT) PublishMotion(linear, angular float64) error {
	m.deadline = m.now().Add(m.cfg.Timeout)
	return m.publish(m.cfg.MotionTopic, Twist{
		Linear:  Vector3{X: linear},
		Angular: Vector3{Z: angular},
	})
}

func (m *MQTT) PublishJoint(index int, velocity float64) error {
	var topic string
	switch index {
	case 1:
		topic = m.cfg.Joint1Topic
	case 2:
		topic = m.cfg.Joint2Topic
	default:
		return fmt.Errorf("joint index %d out of range", index)
	}
	return m.publish(topic, Float64{Data: velocity})
}

func (m *MQTT) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	if m.deadline.IsZero() {
		m.deadline = m.now().Add(m.cfg.Timeout)
	}
	remaining := m.deadline.Sub(m.now())
	if remaining <= 0 {
		return fmt.Errorf("publish %s: timed out, %v tick budget spent", topic, m.cfg.Timeout)
	}

	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(remaining) {
		return fmt.Errorf("publish %s: timed out after %v", topic, m.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker after letting queued publishes drain.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
