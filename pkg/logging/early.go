package logging

import (
	"fmt"
	"os"
)

// EarlyLog writes to stderr/stdout before the structured logger is configured.
type EarlyLog struct {
	component string
}

func NewEarlyLog(component string) *EarlyLog {
	return &EarlyLog{component: component}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write(os.Stderr, "ERROR", msg, args...)
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.write(os.Stderr, "FATAL", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write(os.Stderr, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write(os.Stdout, "INFO", msg, args...)
}

func (l *EarlyLog) write(f *os.File, level, msg string, args ...interface{}) {
	fmt.Fprintf(f, "%s [%s] %s\n", level, l.component, fmt.Sprintf(msg, args...))
}
