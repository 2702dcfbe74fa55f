package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/keyteleop/pkg/config"
	"github.com/gwillem/keyteleop/pkg/log"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"keyteleop.yaml" description:"Configuration file"`
	LogLevel string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Override the configured log level"`

	Run     RunCommand     `command:"run" alias:"teleop" description:"Drive the base and arm from the keyboard"`
	Setup   SetupCommand   `command:"setup" description:"Find the arm bus and calibrate both joints"`
	Monitor MonitorCommand `command:"monitor" description:"Chart the commands published on MQTT"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "keyteleop - keyboard teleoperation for a mobile base with a two-joint arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the --config file, or the defaults if it does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (log.Logger, error) {
	logger, err := log.New(log.Options{Level: cfg.Log.Level, Dir: cfg.Log.Dir})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}
