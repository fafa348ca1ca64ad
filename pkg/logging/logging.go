// Package logging hands out named logrus entries so every package logs
// through one configurable root logger.
package logging

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var root = &logrus.Logger{
	Out: os.Stderr,
	Formatter: &callerFormatter{logrus.TextFormatter{
		FullTimestamp: true,
		// The caller is folded into the message by Format.
		CallerPrettyfier: func(*runtime.Frame) (string, string) { return "", "" },
	}},
	Hooks:        make(logrus.LevelHooks),
	Level:        logrus.InfoLevel,
	ReportCaller: true,
}

// New returns an entry tagged with the component name.
func New(name string) *logrus.Entry {
	return root.WithField("component", name)
}

// Root exposes the shared logger, mostly so tests can attach hooks.
func Root() *logrus.Logger {
	return root
}

// SetLevel parses a logrus level name ("debug", "info", ...) and applies it.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	root.SetLevel(lvl)
	return nil
}

// callerFormatter prefixes each message with the file and line that logged it.
type callerFormatter struct {
	logrus.TextFormatter
}

// Format renders a single log entry.
func (f *callerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry.HasCaller() {
		entry.Message = fmt.Sprintf("[%s:%03d] %s", path.Base(entry.Caller.File), entry.Caller.Line, entry.Message)
	}
	return f.TextFormatter.Format(entry)
}
