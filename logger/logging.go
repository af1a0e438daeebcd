// Package logger defines the logging seam every other package in
// this module depends on, rather than calling the log package
// directly. Kept from the teacher repo, which defined the same
// interface twice (logging.go and model.go); this collapses that into
// one canonical definition.
package logger

import "log"

// DebugLogger is the logging interface the handler, procedures and
// routing table take as a dependency.
type DebugLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NullLogger is the teacher's original plain-stdlib implementation:
// useful for tests and small tools that don't want a logging
// dependency.
type NullLogger struct{}

func (l *NullLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *NullLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *NullLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
