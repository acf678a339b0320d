// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "FLATFIELD_LOG_LEVEL"
	EnvLogNoColor = "FLATFIELD_LOG_NOCOLOR"
)

var (
	logger     = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	loggerOnce sync.Once
)

// Sets up the process-wide logger from environment overrides. Safe to call repeatedly
func LogConfigure() {
	loggerOnce.Do(func() {
		level := zerolog.InfoLevel
		if l, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = l
		}
		noColor, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor)))
		w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen, NoColor: noColor}
		logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	})
}

// The process-wide logger, for handing to components which take a zerolog.Logger
func Logger() zerolog.Logger {
	return logger
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	}
	return zerolog.InfoLevel, false
}

// Log a formatted message at info level. Surrounding newlines are dropped
func LogPrintf(format string, args ...interface{}) {
	logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func LogPrintln(args ...interface{}) {
	logger.Info().Msg(strings.TrimSpace(fmt.Sprintln(args...)))
}

// Log a warning
func LogWarnf(format string, args ...interface{}) {
	logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Log and exit with non-zero status
func LogFatal(args ...interface{}) {
	logger.Fatal().Msg(strings.TrimSpace(fmt.Sprint(args...)))
}

func LogFatalf(format string, args ...interface{}) {
	logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
