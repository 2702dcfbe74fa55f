package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestCompactFormatter(t *testing.T) {
	f := &CompactFormatter{TimestampFormat: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 4, 6, 17, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "joints left moving",
		Data:    logrus.Fields{"sink": "mqtt", "joint": 2},
	}

	got, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "17:30:00 [WAR] joints left moving joint=2 sink=mqtt\r\n"
	if string(got) != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestNew_LevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "[WAR] shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "loud", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debugf("debug")
	l.Infof("info")
	if strings.Contains(buf.String(), "debug") || !strings.Contains(buf.String(), "info") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestNew_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	l, err := New(Options{Dir: dir, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Infof("to file")

	data, err := os.ReadFile(filepath.Join(dir, "keyteleop.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q, want it to contain the message", data)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Output: &buf})
	With(l, "sink", "log").Infof("hello")
	if !strings.Contains(buf.String(), "hello sink=log") {
		t.Errorf("output = %q, want field appended", buf.String())
	}
}
