package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/robot"
)

type countingSink struct {
	motions, joints, closes int
	err                     error
}

func (c *countingSink) PublishMotion(float64, float64) error { c.motions++; return c.err }
func (c *countingSink) PublishJoint(int, float64) error      { c.joints++; return c.err }
func (c *countingSink) Close() error                         { c.closes++; return nil }

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{err: errors.New("b down")}
	c := &countingSink{}
	m := NewMulti(a, b, c)

	err := m.PublishMotion(1, 2)
	if err == nil || !strings.Contains(err.Error(), "b down") {
		t.Errorf("PublishMotion() error = %v, want b's error", err)
	}
	if a.motions != 1 || b.motions != 1 || c.motions != 1 {
		t.Errorf("motions = %d/%d/%d, want every sink called", a.motions, b.motions, c.motions)
	}

	if err := m.PublishJoint(3, 0); err == nil {
		t.Error("PublishJoint(3) error = nil, want out of range")
	}
	if a.joints != 0 {
		t.Errorf("joint 3 reached sinks")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if a.closes != 1 || b.closes != 1 || c.closes != 1 {
		t.Errorf("closes = %d/%d/%d, want 1 each", a.closes, b.closes, c.closes)
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.New(log.Options{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("log.New() error = %v", err)
	}
	s := NewLog(logger)
	s.PublishMotion(50, -50)
	s.PublishJoint(2, 100)

	out := buf.String()
	for _, want := range []string{"linear.x=50.00 angular.z=-50.00", "joint2 velocity=100.00", "sink=log"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

// fakeToken is an mqtt.Token that is already complete.
type fakeToken struct {
	err     error
	pending bool
	waits   []time.Duration
}

func (t *fakeToken) Wait() bool   { return !t.pending }
func (t *fakeToken) Error() error { return t.err }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	t.waits = append(t.waits, d)
	return !t.pending
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods not overridden panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, qos, retained, payload.([]byte)})
	if f.token != nil {
		return f.token
	}
	return &fakeToken{}
}

func (f *fakeClient) Disconnect(uint) {
	f.disconnected = true
}

func TestMQTT_Publish(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTT(client, MQTTConfig{QoS: 1}, nil)

	if err := s.PublishMotion(100, -50); err != nil {
		t.Fatalf("PublishMotion() error = %v", err)
	}
	if err := s.PublishJoint(1, 50); err != nil {
		t.Fatalf("PublishJoint(1) error = %v", err)
	}
	if err := s.PublishJoint(2, -150); err != nil {
		t.Fatalf("PublishJoint(2) error = %v", err)
	}
	if err := s.PublishJoint(0, 1); err == nil {
		t.Error("PublishJoint(0) error = nil")
	}

	if len(client.messages) != 3 {
		t.Fatalf("published %d messages, want 3", len(client.messages))
	}

	motion := client.messages[0]
	if motion.topic != DefaultMotionTopic || motion.qos != 1 || motion.retained {
		t.Errorf("motion publish = %+v", motion)
	}
	var twist Twist
	if err := json.Unmarshal(motion.payload, &twist); err != nil {
		t.Fatalf("decode twist: %v", err)
	}
	if twist != (Twist{Linear: Vector3{X: 100}, Angular: Vector3{Z: -50}}) {
		t.Errorf("twist = %+v", twist)
	}

	wantJoints := []struct {
		topic string
		data  float64
	}{
		{DefaultJoint1Topic, 50},
		{DefaultJoint2Topic, -150},
	}
	for i, w := range wantJoints {
		msg := client.messages[i+1]
		var f Float64
		if err := json.Unmarshal(msg.payload, &f); err != nil {
			t.Fatalf("decode joint: %v", err)
		}
		if msg.topic != w.topic || f.Data != w.data {
			t.Errorf("joint publish %d = %s %v, want %s %v", i+1, msg.topic, f.Data, w.topic, w.data)
		}
	}

	s.Close()
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
}

func TestMQTT_PublishErrors(t *testing.T) {
	client := &fakeClient{token: &fakeToken{err: errors.New("not connected")}}
	s := NewMQTT(client, MQTTConfig{}, nil)
	if err := s.PublishMotion(0, 0); err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Errorf("PublishMotion() error = %v, want token error", err)
	}

	client.token = &fakeToken{pending: true}
	if err := s.PublishJoint(1, 0); err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("PublishJoint() error = %v, want timeout", err)
	}
}

func TestMQTT_TickShareOneDeadline(t *testing.T) {
	token := &fakeToken{}
	client := &fakeClient{token: token}
	s := NewMQTT(client, MQTTConfig{Timeout: 100 * time.Millisecond}, nil)
	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	if err := s.PublishMotion(50, 0); err != nil {
		t.Fatalf("PublishMotion() error = %v", err)
	}
	clock = clock.Add(30 * time.Millisecond)
	if err := s.PublishJoint(1, 0); err != nil {
		t.Fatalf("PublishJoint(1) error = %v", err)
	}
	clock = clock.Add(80 * time.Millisecond)
	err := s.PublishJoint(2, 0)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("PublishJoint(2) past the deadline error = %v, want timeout", err)
	}

	want := []time.Duration{100 * time.Millisecond, 70 * time.Millisecond}
	if len(token.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", token.waits, want)
	}
	for i := range want {
		if token.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, token.waits[i], want[i])
		}
	}
	if len(client.messages) != 2 {
		t.Errorf("published %d messages, want joint 2 skipped", len(client.messages))
	}

	// The next tick gets a fresh budget.
	if err := s.PublishMotion(0, 0); err != nil {
		t.Errorf("PublishMotion() on next tick error = %v", err)
	}
}

func TestDialMQTT_RequiresBroker(t *testing.T) {
	if _, err := DialMQTT(MQTTConfig{}, log.Discard()); err == nil {
		t.Error("DialMQTT() without broker error = nil")
	}
}

type fakeArm struct {
	writes   []map[robot.JointName]float64
	err      error
	disabled bool
	closed   bool
}

func (f *fakeArm) WritePositions(_ context.Context, p map[robot.JointName]float64) error {
	f.writes = append(f.writes, p)
	return f.err
}

func (f *fakeArm) Disable(context.Context) error { f.disabled = true; return nil }
func (f *fakeArm) Close() error                  { f.closed = true; return nil }

func TestManipulator(t *testing.T) {
	arm := &fakeArm{}
	s := NewManipulator(arm, 0.1, map[robot.JointName]float64{robot.Joint1: 20, robot.Joint2: -20}, nil)
	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	if err := s.PublishMotion(150, 150); err != nil {
		t.Fatalf("PublishMotion() error = %v", err)
	}
	tick := func(v float64) {
		t.Helper()
		if err := s.PublishJoint(1, v); err != nil {
			t.Fatalf("PublishJoint(1) error = %v", err)
		}
		if err := s.PublishJoint(2, v); err != nil {
			t.Fatalf("PublishJoint(2) error = %v", err)
		}
	}

	tick(100)
	clock = clock.Add(100 * time.Millisecond)
	tick(100)

	if len(arm.writes) != 2 {
		t.Fatalf("writes = %d, want one per joint-2 publish", len(arm.writes))
	}
	first := arm.writes[0]
	if first[robot.Joint1] != 20 || first[robot.Joint2] != -20 {
		t.Errorf("first write = %v, want start positions", first)
	}
	// 100 * 0.1 * 0.1 s = 1
	second := arm.writes[1]
	if math.Abs(second[robot.Joint1]-21) > 1e-9 || math.Abs(second[robot.Joint2]+19) > 1e-9 {
		t.Errorf("second write = %v, want joint1 21 and joint2 -19", second)
	}

	if err := s.PublishJoint(3, 0); err == nil {
		t.Error("PublishJoint(3) error = nil")
	}

	arm.err = errors.New("servo timeout")
	if err := s.PublishJoint(2, 0); err == nil || !strings.Contains(err.Error(), "servo timeout") {
		t.Errorf("PublishJoint() error = %v, want write failure", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !arm.disabled || !arm.closed {
		t.Errorf("Close() disabled=%v closed=%v, want both", arm.disabled, arm.closed)
	}
}
