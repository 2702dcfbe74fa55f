// Package log is the logging facade used across keyteleop.
package log

// Logger is the small logging surface the controller and sinks depend on.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
