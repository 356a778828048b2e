package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Origins is the CORS allow-list. It is immutable so that copies of
// Settings never share mutable state.
type Origins struct {
	list []string
}

// NewOrigins builds an allow-list, dropping blank entries.
func NewOrigins(origins ...string) Origins {
	return Origins{list: trimAll(origins)}
}

// List returns a copy of the configured origins.
func (o Origins) List() []string {
	return slices.Clone(o.list)
}

// Allows reports whether origin may make cross-origin requests. "*" admits
// any origin; other entries match case-insensitively.
func (o Origins) Allows(origin string) bool {
	for _, allowed := range o.list {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (o Origins) String() string {
	return strings.Join(o.list, ",")
}

var originsType = reflect.TypeOf(Origins{})

// originsHook decodes a comma-separated string or a list into Origins.
func originsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != originsType {
		return data, nil
	}
	switch v := data.(type) {
	case Origins:
		return v, nil
	case string:
		return NewOrigins(strings.Split(v, ",")...), nil
	case []string:
		return NewOrigins(v...), nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		return NewOrigins(items...), nil
	}
	return nil, fmt.Errorf("cannot decode %T into origins", data)
}

// decodeHook keeps viper's default hooks and adds Origins.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		originsHook,
	)
}
