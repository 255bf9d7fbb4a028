// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSettingsFromMap(t *testing.T) {
	tests := []struct {
		desc string
		in   map[string]interface{}
		want Settings
	}{
		{
			desc: "strings as read from an ini file",
			in: map[string]interface{}{
				"Name":               "errorlog",
				"Mode":               "Synchronous",
				"Interval":           "250",
				"Timeout":            "5s",
				"RequeueOnException": "true",
				"MaxRetries":         "3",
				"RequeueMode":        "Prefix",
				"LogLevel":           "debug",
			},
			want: Settings{
				Name:               "errorlog",
				Mode:               Synchronous,
				Interval:           250 * time.Millisecond,
				Timeout:            5 * time.Second,
				RequeueOnException: true,
				RequeueMode:        RequeueToHead,
				MaxRetries:         3,
				LogLevel:           DebugLevel,
			},
		},
		{
			desc: "numbers as decoded from json",
			in: map[string]interface{}{
				"name":             "exporter",
				"mode":             "realtime",
				"maxWorkers":       float64(8),
				"requeueOnTimeout": true,
				"rateLimit":        12.5,
				"rateBurst":        float64(4),
				"shutdownTimeout":  float64(2000),
			},
			want: Settings{
				Name:             "exporter",
				Mode:             RealTime,
				MaxWorkers:       8,
				RequeueOnTimeout: true,
				RateLimit:        12.5,
				RateBurst:        4,
				ShutdownTimeout:  2 * time.Second,
			},
		},
	}

	for _, tc := range tests {
		got, err := SettingsFromMap(tc.in)
		if err != nil {
			t.Errorf("%s: SettingsFromMap returned error: %v", tc.desc, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got, cmpopts.IgnoreFields(Settings{}, "RetryDelayFunc", "BaseContext", "StatsFunc")); diff != "" {
			t.Errorf("%s: SettingsFromMap mismatch (-want +got):\n%s", tc.desc, diff)
		}
	}
}

func TestSettingsFromMapErrors(t *testing.T) {
	tests := []struct {
		desc string
		in   map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"priority": 1}},
		{"bad mode", map[string]interface{}{"mode": "parallel"}},
		{"bad bool", map[string]interface{}{"requeueOnTimeout": "sometimes"}},
		{"bad duration", map[string]interface{}{"interval": "soon"}},
		{"bad level", map[string]interface{}{"logLevel": "loud"}},
		{"bad requeue mode", map[string]interface{}{"requeueMode": "middle"}},
		{"negative workers", map[string]interface{}{"maxWorkers": -1}},
	}

	for _, tc := range tests {
		_, err := SettingsFromMap(tc.in)
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: SettingsFromMap returned %v, want error wrapping ErrConfiguration", tc.desc, err)
		}
	}
}
