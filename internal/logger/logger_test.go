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

package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	textTraceString   = `^time="[0-9/:. ]{26}" severity=TRACE message="TestLogs: www\.traceExample\.com"`
	textDebugString   = `^time="[0-9/:. ]{26}" severity=DEBUG message="TestLogs: www\.debugExample\.com"`
	textInfoString    = `^time="[0-9/:. ]{26}" severity=INFO message="TestLogs: www\.infoExample\.com"`
	textWarningString = `^time="[0-9/:. ]{26}" severity=WARNING message="TestLogs: www\.warningExample\.com"`
	textErrorString   = `^time="[0-9/:. ]{26}" severity=ERROR message="TestLogs: www\.errorExample\.com"`

	jsonTraceString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{1,9}\},"severity":"TRACE","message":"TestLogs: www\.traceExample\.com"\}`
	jsonDebugString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{1,9}\},"severity":"DEBUG","message":"TestLogs: www\.debugExample\.com"\}`
	jsonInfoString    = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{1,9}\},"severity":"INFO","message":"TestLogs: www\.infoExample\.com"\}`
	jsonWarningString = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{1,9}\},"severity":"WARNING","message":"TestLogs: www\.warningExample\.com"\}`
	jsonErrorString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{1,9}\},"severity":"ERROR","message":"TestLogs: www\.errorExample\.com"\}`
)

// redirectLogsToBuffer repoints the default logger at buf, at the given
// format and severity threshold, the same substitution
// redirectLogsToGivenBuffer performs in the teacher's test.
func redirectLogsToBuffer(buf *bytes.Buffer, format, level string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, toLevelVar(level), "TestLogs: "))
}

// fetchLogOutputForLevel runs one line through every severity function and
// returns what, if anything, each call wrote.
func fetchLogOutputForLevel(format, level string) []string {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, format, level)

	functions := []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}

	output := make([]string, len(functions))
	for i, fn := range functions {
		fn()
		output[i] = buf.String()
		buf.Reset()
	}
	return output
}

func assertLogOutput(t *testing.T, expected, got []string) {
	for i := range got {
		if expected[i] == "" {
			assert.Equal(t, "", got[i])
			continue
		}
		assert.Regexp(t, expected[i], got[i])
	}
}

func TestTextFormatLogsBySeverity(t *testing.T) {
	cases := []struct {
		name     string
		level    string
		expected []string
	}{
		{"OFF", OFF, []string{"", "", "", "", ""}},
		{"ERROR", ERROR, []string{"", "", "", "", textErrorString}},
		{"WARNING", WARNING, []string{"", "", "", textWarningString, textErrorString}},
		{"INFO", INFO, []string{"", "", textInfoString, textWarningString, textErrorString}},
		{"DEBUG", DEBUG, []string{"", textDebugString, textInfoString, textWarningString, textErrorString}},
		{"TRACE", TRACE, []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assertLogOutput(t, c.expected, fetchLogOutputForLevel("text", c.level))
		})
	}
}

func TestJSONFormatLogsBySeverity(t *testing.T) {
	cases := []struct {
		name     string
		level    string
		expected []string
	}{
		{"OFF", OFF, []string{"", "", "", "", ""}},
		{"ERROR", ERROR, []string{"", "", "", "", jsonErrorString}},
		{"WARNING", WARNING, []string{"", "", "", jsonWarningString, jsonErrorString}},
		{"INFO", INFO, []string{"", "", jsonInfoString, jsonWarningString, jsonErrorString}},
		{"DEBUG", DEBUG, []string{"", jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}},
		{"TRACE", TRACE, []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assertLogOutput(t, c.expected, fetchLogOutputForLevel("json", c.level))
		})
	}
}

func TestSeverityNameKnownLevels(t *testing.T) {
	for name, level := range severityLevel {
		assert.Equal(t, name, severityName(level))
	}
}

func TestSeverityNameFallsBackToSlogString(t *testing.T) {
	name := severityName(slog.Level(999))

	assert.NotContains(t, []string{TRACE, DEBUG, INFO, WARNING, ERROR, OFF}, name)
	assert.NotEmpty(t, name)
}

func TestSetLogFormat(t *testing.T) {
	defaultLoggerFactory = &loggerFactory{format: "text", level: INFO, sysWriter: &bytes.Buffer{}}

	cases := []struct {
		format   string
		expected string
	}{
		{"text", textInfoString},
		{"json", jsonInfoString},
	}

	for _, c := range cases {
		SetLogFormat(c.format)

		assert.Equal(t, c.format, defaultLoggerFactory.format)

		var buf bytes.Buffer
		redirectLogsToBuffer(&buf, defaultLoggerFactory.format, defaultLoggerFactory.level)
		Infof("www.infoExample.com")
		assert.Regexp(t, c.expected, buf.String())
	}
}

func TestInitLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	rotate := LogRotateConfig{MaxFileSizeMB: 100, BackupFileCount: 2, Compress: true}

	err := InitLogFile(path, "text", DEBUG, rotate)

	require.NoError(t, err)
	assert.Equal(t, path, defaultLoggerFactory.file.Name())
	assert.Nil(t, defaultLoggerFactory.sysWriter)
	assert.Equal(t, "text", defaultLoggerFactory.format)
	assert.Equal(t, DEBUG, defaultLoggerFactory.level)
	assert.Equal(t, rotate, defaultLoggerFactory.logRotateConfig)
}

func TestInitLogFileRejectsUnopenablePath(t *testing.T) {
	err := InitLogFile(filepath.Join(t.TempDir(), "missing-dir", "log.txt"), "text", INFO, LogRotateConfig{})

	assert.Error(t, err)
}
