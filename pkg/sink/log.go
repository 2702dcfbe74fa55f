package sink

import (
	"github.com/gwillem/keyteleop/pkg/log"
	"github.com/gwillem/keyteleop/pkg/teleop"
)

var _ teleop.CommandSink = (*Log)(nil)

// Log writes every command to a logger at debug level. It is the dry-run
// sink used when no hardware or broker is configured.
type Log struct {
	logger log.Logger
}

// NewLog creates a log sink.
func NewLog(logger log.Logger) *Log {
	return &Log{logger: log.With(logger, "sink", "log")}
}

func (l *Log) PublishMotion(linear, angular float64) error {
	l.logger.Debugf("motion linear.x=%.2f angular.z=%.2f", linear, angular)
	return nil
}

func (l *Log) PublishJoint(index int, velocity float64) error {
	l.logger.Debugf("joint%d velocity=%.2f", index, velocity)
	return nil
}
