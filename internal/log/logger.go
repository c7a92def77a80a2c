// Package log provides a global logger with configurable logging level. Logging is disabled by
// default so that library users decide what ends up on stderr; the bundled command-line tools
// enable it with a -debug flag.

package log

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs failures that are not expected to occur during normal use.
	LevelWarning              // Logs failures that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var globalLogLevel atomic.Int32

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

func SetLevel(level Level) {
	globalLogLevel.Store(int32(level))
}

func log(level Level, format string, a ...interface{}) {
	if level <= Level(globalLogLevel.Load()) {
		msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
		msg += fmt.Sprintf(format, a...)
		fmt.Fprintln(os.Stderr, msg)
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
