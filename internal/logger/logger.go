// Copyright 2025 Google LLC
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

// Package logger provides the structured, severity-levelled logger used
// throughout the engine: slog underneath, a pluggable text/json handler,
// and an optional asynchronous, rotating file sink.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

var severityLevel = map[string]slog.Level{
	TRACE:   slog.LevelDebug - 4,
	DEBUG:   slog.LevelDebug,
	INFO:    slog.LevelInfo,
	WARNING: slog.LevelWarn,
	ERROR:   slog.LevelError,
	OFF:     slog.LevelError + 4,
}

// LogRotateConfig mirrors the on-disk rotation policy for the log file.
type LogRotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

type loggerFactory struct {
	format          string // "text" or "json"
	level           string
	prefix          string
	file            *os.File
	sysWriter       io.Writer
	logRotateConfig LogRotateConfig
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text", level: INFO, sysWriter: os.Stderr}
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, toLevelVar(INFO), ""))
)

func toLevelVar(level string) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(severityLevel[level])
	return v
}

// createJsonOrTextHandler builds the slog.Handler for the factory's current
// format. Text records render `time="..." severity=LEVEL message="..."`, json records
// render "{"timestamp":{"seconds":N,"nanos":N},"severity":"LEVEL","message":"..."}".
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	if f.format == "json" {
		return &jsonSeverityHandler{w: w, level: level, prefix: prefix}
	}
	return &textSeverityHandler{w: w, level: level, prefix: prefix}
}

func severityName(l slog.Level) string {
	for name, lvl := range severityLevel {
		if lvl == l {
			return name
		}
	}
	return l.String()
}

type textSeverityHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *textSeverityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *textSeverityHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), severityName(r.Level), h.prefix+r.Message)
	return err
}

func (h *textSeverityHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *textSeverityHandler) WithGroup(string) slog.Handler      { return h }

type jsonSeverityHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *jsonSeverityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *jsonSeverityHandler) Handle(_ context.Context, r slog.Record) error {
	type ts struct {
		Seconds int64 `json:"seconds"`
		Nanos   int   `json:"nanos"`
	}
	rec := struct {
		Timestamp ts     `json:"timestamp"`
		Severity  string `json:"severity"`
		Message   string `json:"message"`
	}{
		Timestamp: ts{Seconds: r.Time.Unix(), Nanos: r.Time.Nanosecond()},
		Severity:  severityName(r.Level),
		Message:   h.prefix + r.Message,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *jsonSeverityHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *jsonSeverityHandler) WithGroup(string) slog.Handler      { return h }

// SetLogFormat switches the default logger between "text" and "json".
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.sysWriter, toLevelVar(defaultLoggerFactory.level), defaultLoggerFactory.prefix))
}

// InitLogFile points the default logger at a rotating log file instead of
// stderr, wrapped in an AsyncLogger so writes never block the caller.
func InitLogFile(filePath, format, level string, rotate LogRotateConfig) error {
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rotate.MaxFileSizeMB,
		MaxBackups: rotate.BackupFileCount,
		Compress:   rotate.Compress,
	}
	async := NewAsyncLogger(lj, 4096)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	defaultLoggerFactory = &loggerFactory{
		format:          format,
		level:           level,
		file:            f,
		logRotateConfig: rotate,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(async, toLevelVar(level), ""))
	return nil
}

func Tracef(format string, args ...any) { defaultLogger.Log(context.Background(), severityLevel[TRACE], fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }

// now is not read by either handler: both timestamp a record from its
// own slog.Record.Time.
var now = time.Now
