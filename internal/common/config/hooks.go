package config

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		IntListHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

// IntListHookFunc decodes a comma-separated string such as "1,2,4,8" into an []int. Environment variables can only
// carry strings, so this is how process-count and problem-size lists are overridden from the environment.
func IntListHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]int{}) {
			return data, nil
		}
		return ParseIntList(data.(string))
	}
}

// ParseIntList parses a comma-separated list of integers. Whitespace around items is ignored; an empty string
// yields an empty list.
func ParseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	rv := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing integer list %q", s)
		}
		rv = append(rv, v)
	}
	return rv, nil
}
