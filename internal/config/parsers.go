// Package config resolves rampfire run settings from defaults, config files,
// RAMPFIRE_* environment variables, flags and positional arguments.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// lookupSetting returns the first candidate key that is set in the config
// file or the environment.
func lookupSetting(v *viper.Viper, candidates ...string) (any, bool) {
	for _, key := range candidates {
		if v.IsSet(key) {
			return v.Get(key), true
		}
	}
	return nil, false
}

// Environment values arrive as untrimmed strings.
func trimmed(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func asString(value any) (string, error) {
	return cast.ToStringE(value)
}

func asInt(value any) (int, error) {
	if s, ok := trimmed(value).(string); ok && s == "" {
		return 0, nil
	}
	return cast.ToIntE(trimmed(value))
}

func asFloat64(value any) (float64, error) {
	if s, ok := trimmed(value).(string); ok && s == "" {
		return 0, nil
	}
	return cast.ToFloat64E(trimmed(value))
}

func asBool(value any) (bool, error) {
	if s, ok := trimmed(value).(string); ok && s == "" {
		return false, nil
	}
	return cast.ToBoolE(trimmed(value))
}

// asDuration accepts Go duration strings. Bare numbers, typed or quoted,
// are seconds to match the positional duration argument.
func asDuration(value any) (time.Duration, error) {
	switch v := trimmed(value).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(v)
	default:
		secs, err := cast.ToIntE(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(secs) * time.Second, nil
	}
}

// asStringMap reads headers either as a mapping from a config file or as a
// "k=v,k2=v2" string from the environment.
func asStringMap(value any) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		result := map[string]string{}
		for _, part := range strings.Split(s, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			key, val, err := parseHeader(part)
			if err != nil {
				return nil, err
			}
			result[key] = val
		}
		return result, nil
	}

	result, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}
	for k := range result {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
	}
	return result, nil
}

// asStringSlice keeps a lone string as one element; threshold expressions
// contain spaces.
func asStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	default:
		return cast.ToStringSliceE(v)
	}
}
