// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogType - type of logging, used in flow package
type LogType uint8

const (
	// No - no output even after fatal errors
	No LogType = 1 << iota
	// Initialization - output during system initialization
	Initialization
	// Debug - output during execution one time per time period (stats ticks)
	Debug
	// Verbose - output during execution as soon as something happens. Can influence performance
	Verbose
)

var currentLogType = No | Initialization | Debug

var logger = newLogger()

// exit is replaced in tests.
var exit = os.Exit

func newLogger() *zap.SugaredLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.CallerKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		zap.DebugLevel,
	)
	return zap.New(core).Sugar()
}

func line(v []interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(v...), "\n")
}

// LogFatal internal, used in all packages
func LogFatal(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Error(line(v))
	}
	logger.Sync()
	exit(1)
}

// LogFatalf is a wrapper at LogFatal which makes formatting before logger.
func LogFatalf(logType LogType, format string, v ...interface{}) {
	LogFatal(logType, fmt.Sprintf(format, v...))
}

// LogError internal, used in all packages
func LogError(logType LogType, v ...interface{}) string {
	if logType&currentLogType != 0 {
		t := line(v)
		logger.Error(t)
		return t
	}
	return ""
}

// LogWarning internal, used in all packages
func LogWarning(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Warn(line(v))
	}
}

// LogDebug internal, used in all packages
func LogDebug(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Debug(line(v))
	}
}

// LogInfo internal, used in all packages
func LogInfo(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Info(line(v))
	}
}

// LogDrop internal, used in all packages
func LogDrop(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.With("event", "drop").Info(line(v))
	}
}

// LogTitle internal, used in all packages
func LogTitle(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Info(fmt.Sprint(v...))
	}
}

// SetLogType internal, used in flow package
func SetLogType(logType LogType) {
	currentLogType = logType
}

// GetLogType returns current logging type.
func GetLogType() LogType {
	return currentLogType
}

// ParseLogType converts a comma separated list of logging types
// ("no", "init", "debug", "verbose") to LogType.
func ParseLogType(s string) (LogType, error) {
	logType := No
	if s == "" {
		return logType | Initialization | Debug, nil
	}
	for _, t := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "no", "none":
		case "init", "initialization":
			logType |= Initialization
		case "debug":
			logType |= Debug
		case "verbose":
			logType |= Verbose
		default:
			return 0, WrapWithNFError(nil, "unknown log type "+t, BadArgument)
		}
	}
	return logType, nil
}
