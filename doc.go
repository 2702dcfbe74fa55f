// Package keyteleop drives a mobile base and a two-joint arm from the keyboard.
//
// Each key press nudges a bounded velocity setpoint; the current setpoints are
// published every tick (100ms by default) so consumers that time out on stale
// commands keep seeing fresh values. Ctrl+C, in-band or as a signal, publishes
// a zero motion command before exiting.
//
// # Installation
//
//	go install github.com/gwillem/keyteleop/cmd/keyteleop@latest
//
// # Usage
//
// Drive with the default log sink (dry run):
//
//	keyteleop run
//
// Publish to an MQTT broker and a calibrated arm:
//
//	keyteleop setup
//	keyteleop run --sink mqtt --sink arm --broker tcp://robot.local:1883
//
// Watch what is being published:
//
//	keyteleop monitor --broker tcp://robot.local:1883
//
// # Packages
//
//   - cmd/keyteleop: CLI with run, setup, monitor and ports commands
//   - pkg/teleop: key mapping, velocity state and the control loop
//   - pkg/keyboard: terminal key source with per-poll raw mode
//   - pkg/sink: log, MQTT and arm command sinks
//   - pkg/robot: two-joint arm over a Feetech bus, calibration
//   - pkg/config: YAML configuration
//   - pkg/log: logrus-backed logger
package keyteleop
