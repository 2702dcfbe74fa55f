package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gwillem/keyteleop/pkg/config"
	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/robot"
)

func TestRenderBanner(t *testing.T) {
	banner := renderBanner(config.Default())
	for _, want := range []string{
		"Keyboard teleoperation",
		"increase forward speed",
		"rotate joints left",
		"ctrl+c",
		"linear ±150 step 50",
		"publishing every 100ms to log, joints on exit: hold",
	} {
		if !strings.Contains(banner, want) {
			t.Errorf("banner missing %q:\n%s", want, banner)
		}
	}
}

func TestRunCommand_Apply(t *testing.T) {
	cfg := config.Default()
	cmd := RunCommand{
		Tick:     50 * time.Millisecond,
		Shutdown: "zero",
		Sinks:    []string{"mqtt"},
		Broker:   "tcp://localhost:1883",
	}
	cmd.apply(cfg)

	if time.Duration(cfg.Tick) != 50*time.Millisecond || cfg.Shutdown != "zero" {
		t.Errorf("tick/shutdown not applied: %v %s", time.Duration(cfg.Tick), cfg.Shutdown)
	}
	if !cfg.HasSink(config.SinkMQTT) || cfg.HasSink(config.SinkLog) {
		t.Errorf("Sinks = %v, want [mqtt]", cfg.Sinks)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q", cfg.MQTT.Broker)
	}

	empty := RunCommand{}
	before := *config.Default()
	after := config.Default()
	empty.apply(after)
	if after.Tick != before.Tick || after.Shutdown != before.Shutdown || len(after.Sinks) != 1 {
		t.Errorf("empty flags changed config: %+v", after)
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := config.Default()
	out, err := buildSinks(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatalf("buildSinks() error = %v", err)
	}
	if out.Len() != 1 {
		t.Errorf("Len() = %d, want 1", out.Len())
	}
	if err := out.PublishMotion(1, 2); err != nil {
		t.Errorf("PublishMotion() error = %v", err)
	}

	cfg.Sinks = []string{config.SinkLog, "ros"}
	if _, err := buildSinks(context.Background(), cfg, log.Discard()); err == nil {
		t.Error("buildSinks() with unknown sink error = nil")
	}

	cfg.Sinks = []string{config.SinkMQTT}
	if _, err := buildSinks(context.Background(), cfg, log.Discard()); err == nil {
		t.Error("buildSinks() with mqtt and no broker error = nil")
	}
}

func TestDecodeSample(t *testing.T) {
	mc := config.Default().MQTT

	got, err := decodeSample(mc, mc.MotionTopic, []byte(`{"linear":{"x":100,"y":0,"z":0},"angular":{"x":0,"y":0,"z":-50}}`))
	if err != nil {
		t.Fatalf("decodeSample(motion) error = %v", err)
	}
	if got[seriesLinear] != 100 || got[seriesAngular] != -50 {
		t.Errorf("decodeSample(motion) = %v", got)
	}

	got, err = decodeSample(mc, mc.Joint2Topic, []byte(`{"data":150}`))
	if err != nil {
		t.Fatalf("decodeSample(joint2) error = %v", err)
	}
	if len(got) != 1 || got[seriesJoint2] != 150 {
		t.Errorf("decodeSample(joint2) = %v", got)
	}

	if _, err := decodeSample(mc, mc.Joint1Topic, []byte(`{`)); err == nil {
		t.Error("decodeSample(bad json) error = nil")
	}
	if _, err := decodeSample(mc, "other", []byte(`{}`)); err == nil {
		t.Error("decodeSample(other topic) error = nil")
	}
}

func TestMonitorModel_Stale(t *testing.T) {
	cfg := config.Default()
	m := newMonitorModel(cfg, make(chan sampleMsg), make(chan string), 3)

	now := time.Now()
	if !m.stale(now) {
		t.Error("stale() = false before any sample")
	}

	updated, _ := m.Update(sampleMsg{values: map[string]float64{seriesLinear: 50, seriesAngular: 0}, at: now})
	m = updated.(monitorModel)
	if m.stale(now.Add(200 * time.Millisecond)) {
		t.Error("stale() = true two ticks after a motion sample")
	}
	if !m.stale(now.Add(400 * time.Millisecond)) {
		t.Error("stale() = false four ticks after a motion sample")
	}
	if m.latest[seriesLinear] != 50 {
		t.Errorf("latest linear = %v, want 50", m.latest[seriesLinear])
	}
}

func TestCalibrationModel_Record(t *testing.T) {
	m := newCalibrationModel(robot.AllJoints(), nil)
	m.record(robot.Joint1, 2000)
	m.lo[robot.Joint1], m.hi[robot.Joint1] = 2000, 2000

	for _, pos := range []int{1500, 2600, 1800} {
		m.record(robot.Joint1, pos)
	}
	if m.lo[robot.Joint1] != 1500 || m.hi[robot.Joint1] != 2600 || m.cur[robot.Joint1] != 1800 {
		t.Errorf("range = [%d, %d] cur %d, want [1500, 2600] cur 1800",
			m.lo[robot.Joint1], m.hi[robot.Joint1], m.cur[robot.Joint1])
	}
}

func TestSetupCommand_Calibration(t *testing.T) {
	c := SetupCommand{Joint1ID: 11, Joint2ID: 12, InvertJoint2: true}
	lo := map[robot.JointName]int{robot.Joint1: 800, robot.Joint2: 900}
	hi := map[robot.JointName]int{robot.Joint1: 3200, robot.Joint2: 3100}

	cal := c.calibration(robot.AllJoints(), lo, hi)
	want := robot.Calibration{
		robot.Joint1: {ID: 11, RangeMin: 800, RangeMax: 3200},
		robot.Joint2: {ID: 12, DriveMode: 1, RangeMin: 900, RangeMax: 3100},
	}
	for name, jc := range want {
		if cal[name] != jc {
			t.Errorf("calibration()[%s] = %+v, want %+v", name, cal[name], jc)
		}
	}
	if got := cal[robot.Joint2].Normalize(900); got != 100 {
		t.Errorf("inverted joint2 Normalize(range_min) = %v, want 100", got)
	}
}
