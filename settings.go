// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
	"github.com/spf13/cast"
)

// SettingsFromMap builds Settings from loosely typed values, such as those
// decoded from a JSON, YAML or INI configuration file.
//
// Recognized keys, matched case-insensitively, are name, mode, interval,
// maxWorkers, timeout, requeueOnTimeout, requeueOnException, requeueMode,
// maxRetries, rateLimit, rateBurst, shutdownTimeout and logLevel. Durations accept Go
// duration strings ("250ms") or a bare number of milliseconds. Unknown keys
// are rejected.
func SettingsFromMap(m map[string]interface{}) (Settings, error) {
	const op errors.Op = "processqueue.SettingsFromMap"
	var s Settings
	for k, v := range m {
		var err error
		switch strings.ToLower(k) {
		case "name":
			s.Name, err = cast.ToStringE(v)
		case "mode":
			var mode string
			if mode, err = cast.ToStringE(v); err == nil {
				s.Mode, err = ParseThreadingMode(mode)
			}
		case "interval":
			s.Interval, err = toMilliseconds(v)
		case "maxworkers":
			s.MaxWorkers, err = cast.ToIntE(v)
		case "timeout":
			s.Timeout, err = toMilliseconds(v)
		case "requeueontimeout":
			s.RequeueOnTimeout, err = cast.ToBoolE(v)
		case "requeueonexception":
			s.RequeueOnException, err = cast.ToBoolE(v)
		case "requeuemode":
			var mode string
			if mode, err = cast.ToStringE(v); err == nil {
				s.RequeueMode, err = ParseRequeueMode(mode)
			}
		case "maxretries":
			s.MaxRetries, err = cast.ToIntE(v)
		case "ratelimit":
			s.RateLimit, err = cast.ToFloat64E(v)
		case "rateburst":
			s.RateBurst, err = cast.ToIntE(v)
		case "shutdowntimeout":
			s.ShutdownTimeout, err = toMilliseconds(v)
		case "loglevel":
			var level string
			if level, err = cast.ToStringE(v); err == nil {
				err = s.LogLevel.Set(level)
			}
		default:
			err = fmt.Errorf("unknown setting")
		}
		if err != nil {
			return Settings{}, errors.E(op, errors.InvalidArgument, fmt.Errorf("%w: %s=%v: %v", ErrConfiguration, k, v, err))
		}
	}
	if err := validateSettings(op, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// toMilliseconds converts v to a duration. Numbers, including numeric
// strings, are taken as milliseconds.
func toMilliseconds(v interface{}) (time.Duration, error) {
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return cast.ToDurationE(v)
}
