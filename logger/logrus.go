package logger

import "github.com/sirupsen/logrus"

// LogrusLogger backs DebugLogger with a structured logrus.Logger,
// grounded on opd-ai-toxcore's use of sirupsen/logrus as its logger of
// record. Intended as the production default; NullLogger remains
// available for tests and minimal tools.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger wraps l, or logrus's package-level standard logger
// if l is nil.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{log: l}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}
func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}
