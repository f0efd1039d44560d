// Copyright The AccelRT Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Level describes the severity of a log message.
type Level int32

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError

	// DefaultLevel is the default logging severity level.
	DefaultLevel = LevelInfo

	// debugEnvVar is the environment variable used to seed debugging flags.
	debugEnvVar = "ACCELRT_DEBUG"
)

// Logger is the per-source logging interface.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// DebugEnabled returns true if debug messages are enabled for this source.
	DebugEnabled() bool
	// Source returns the source name of this logger.
	Source() string
}

type logging struct {
	sync.RWMutex
	level   Level
	loggers map[string]*logger
	debug   map[string]bool
}

type logger struct {
	source string
}

var log = &logging{
	level:   DefaultLevel,
	loggers: make(map[string]*logger),
	debug:   make(map[string]bool),
}

// Get returns the named logger, creating it if necessary.
func Get(source string) Logger {
	log.Lock()
	defer log.Unlock()
	return log.get(source)
}

// Default returns the default logger.
func Default() Logger {
	return Get("default")
}

// SetLevel sets the minimum severity of emitted messages.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// EnableDebug enables or disables debug messages for a source. A source of
// "*" or "all" applies to every source without an explicit setting.
func EnableDebug(source string, enabled bool) {
	log.Lock()
	defer log.Unlock()
	if source == "all" {
		source = "*"
	}
	log.debug[source] = enabled
}

func (l *logging) get(source string) *logger {
	if lg, ok := l.loggers[source]; ok {
		return lg
	}
	lg := &logger{source: source}
	l.loggers[source] = lg
	return lg
}

func (l *logging) debugEnabled(source string) bool {
	l.RLock()
	defer l.RUnlock()
	if enabled, ok := l.debug[source]; ok {
		return enabled
	}
	return l.debug["*"]
}

func (lg *logger) emit(level Level, tag, format string, args ...interface{}) {
	if level < Level(log.level) && !(level == LevelDebug && lg.DebugEnabled()) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s %s %s: %s\n",
		time.Now().Format("2006-01-02T15:04:05.000"), tag, lg.source, msg)
}

func (lg *logger) Debug(format string, args ...interface{}) {
	lg.emit(LevelDebug, "D", format, args...)
}

func (lg *logger) Info(format string, args ...interface{}) {
	lg.emit(LevelInfo, "I", format, args...)
}

func (lg *logger) Warn(format string, args ...interface{}) {
	lg.emit(LevelWarn, "W", format, args...)
}

func (lg *logger) Error(format string, args ...interface{}) {
	lg.emit(LevelError, "E", format, args...)
}

func (lg *logger) DebugEnabled() bool {
	return log.debugEnabled(lg.source)
}

func (lg *logger) Source() string {
	return lg.source
}

// Seed debug flags from the environment.
func init() {
	value, ok := os.LookupEnv(debugEnvVar)
	if !ok {
		return
	}
	for _, source := range strings.Split(value, ",") {
		if source = strings.TrimSpace(source); source != "" {
			EnableDebug(source, true)
		}
	}
}
