package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var _ Logger = (*logrusLogger)(nil)

type logrusLogger struct {
	entry *logrus.Entry
}

// Options configures New.
type Options struct {
	Level  string    // logrus level name, info when empty or invalid
	Dir    string    // also append to Dir/keyteleop.log when set
	Output io.Writer // defaults to stderr
}

// New creates a logrus-backed Logger.
func New(opts Options) (Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&CompactFormatter{TimestampFormat: "2006/01/02 15:04:05.000000"})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory %q: %w", opts.Dir, err)
		}
		path := filepath.Join(opts.Dir, "keyteleop.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %q: %w", path, err)
		}
		out = io.MultiWriter(out, f)
	}
	l.SetOutput(out)

	return &logrusLogger{entry: logrus.NewEntry(l)}, nil
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// With returns a Logger that appends key=value to every line.
func With(l Logger, key string, value any) Logger {
	if l == nil {
		return Discard()
	}
	if ll, ok := l.(*logrusLogger); ok {
		return &logrusLogger{entry: ll.entry.WithField(key, value)}
	}
	return l
}

func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// CompactFormatter writes lines like
//
//	2025/04/06 17:30:00.000000 [INF] message key=value
//
// Lines end in "\r\n" so they stay readable if the terminal is still raw.
type CompactFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *CompactFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = "2006/01/02 15:04:05.000000"
	}
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteString(" ")

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 3 {
		level = level[:3]
	}
	fmt.Fprintf(b, "[%s] ", level)
	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteString("\r\n")
	return b.Bytes(), nil
}
