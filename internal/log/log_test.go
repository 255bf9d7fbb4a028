// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package log

import (
	"bytes"
	"fmt"
	"regexp"
	"testing"
)

// regexp for timestamps
const (
	rgxPID          = `[0-9]+`
	rgxdate         = `[0-9][0-9][0-9][0-9]/[0-9][0-9]/[0-9][0-9]`
	rgxtime         = `[0-9][0-9]:[0-9][0-9]:[0-9][0-9]`
	rgxmicroseconds = `\.[0-9][0-9][0-9][0-9][0-9][0-9]`
)

type tester struct {
	desc        string
	message     string
	wantPattern string // regexp that log output must match
}

func TestLoggerDebug(t *testing.T) {
	tests := []tester{
		{
			desc:    "without trailing newline, logger adds newline",
			message: "queue started",
			wantPattern: fmt.Sprintf("^processqueue: pid=%s %s %s%s DEBUG: queue started\n$",
				rgxPID, rgxdate, rgxtime, rgxmicroseconds),
		},
		{
			desc:    "with trailing newline, logger preserves newline",
			message: "queue started\n",
			wantPattern: fmt.Sprintf("^processqueue: pid=%s %s %s%s DEBUG: queue started\n$",
				rgxPID, rgxdate, rgxtime, rgxmicroseconds),
		},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		logger := NewLogger(newBase(&buf))

		logger.Debug(tc.message)

		got := buf.String()
		matched, err := regexp.MatchString(tc.wantPattern, got)
		if err != nil {
			t.Fatal("pattern did not compile:", err)
		}
		if !matched {
			t.Errorf("logger.Debug(%q) outputted %q, should match pattern %q",
				tc.message, got, tc.wantPattern)
		}
	}
}

func TestLoggerWarnf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(newBase(&buf))

	logger.Warnf("dropped %d items from queue %q", 3, "exporter")

	want := fmt.Sprintf("^processqueue: pid=%s %s %s%s WARN: dropped 3 items from queue \"exporter\"\n$",
		rgxPID, rgxdate, rgxtime, rgxmicroseconds)
	matched, err := regexp.MatchString(want, buf.String())
	if err != nil {
		t.Fatal("pattern did not compile:", err)
	}
	if !matched {
		t.Errorf("logger.Warnf outputted %q, should match pattern %q", buf.String(), want)
	}
}

func TestLoggerWithMinLevel(t *testing.T) {
	tests := []struct {
		level     Level
		logAt     Level
		wantEmpty bool
	}{
		{InfoLevel, DebugLevel, true},
		{InfoLevel, InfoLevel, false},
		{WarnLevel, InfoLevel, true},
		{WarnLevel, ErrorLevel, false},
		{ErrorLevel, WarnLevel, true},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		logger := NewLogger(newBase(&buf))
		logger.SetLevel(tc.level)

		switch tc.logAt {
		case DebugLevel:
			logger.Debug("msg")
		case InfoLevel:
			logger.Info("msg")
		case WarnLevel:
			logger.Warn("msg")
		case ErrorLevel:
			logger.Error("msg")
		}

		if got := buf.Len() == 0; got != tc.wantEmpty {
			t.Errorf("level=%v logAt=%v: output empty=%t, want %t", tc.level, tc.logAt, got, tc.wantEmpty)
		}
	}
}
