// Package logging is a small leveled logging facade used across the repo.
// Output goes through logrus with a formatter that colors each line by level.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const format = "2006-01-02 15:04:05"

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stdout
	l.Level = logrus.InfoLevel
	l.Formatter = &levelFormatter{}
	return l
}

type levelFormatter struct{}

var levelColors = map[logrus.Level]*color.Color{
	logrus.TraceLevel: color.New(color.FgCyan),
	logrus.DebugLevel: color.New(color.FgGreen),
	logrus.InfoLevel:  color.New(color.FgWhite),
	logrus.WarnLevel:  color.New(color.FgBlue),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed),
}

func (levelFormatter) Format(e *logrus.Entry) ([]byte, error) {
	c, ok := levelColors[e.Level]
	if !ok {
		c = color.New(color.FgWhite)
	}

	line := c.Sprintf("%s %s %s", e.Time.Format(format), strings.ToUpper(e.Level.String()), e.Message)
	return []byte(line + "\n"), nil
}

// SetLevel adjusts the minimum level that gets emitted. Accepts the logrus
// level names ("trace", "debug", "info", "warning", "error").
func SetLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	logger.SetLevel(l)
	return nil
}

func Trace(msg string) {
	logger.Trace(msg)
}

func Tracef(msg string, args ...interface{}) {
	logger.Tracef(msg, args...)
}

func Debug(msg string) {
	logger.Debug(msg)
}

func Debugf(msg string, args ...interface{}) {
	logger.Debugf(msg, args...)
}

func Info(msg string) {
	logger.Info(msg)
}

func Infof(msg string, args ...interface{}) {
	logger.Infof(msg, args...)
}

func Warning(msg string) {
	logger.Warn(msg)
}

func Warningf(msg string, args ...interface{}) {
	logger.Warnf(msg, args...)
}

func Error(msg string) {
	logger.Error(msg)
}

func Errorf(msg string, args ...interface{}) {
	logger.Errorf(msg, args...)
}

func Fatalf(msg string, args ...interface{}) {
	logger.Fatalf(msg, args...)
}
