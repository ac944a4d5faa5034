package rpc

import (
	"fmt"

	"github.com/spf13/cast"
)

// Args are the keyword arguments bound from a request payload.
type Args map[string]any

// Has reports whether key was supplied.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Args) String(key string) string {
	return cast.ToString(a[key])
}

func (a Args) Int(key string) int {
	return cast.ToInt(a[key])
}

func (a Args) Int64(key string) int64 {
	return cast.ToInt64(a[key])
}

func (a Args) Float64(key string) float64 {
	return cast.ToFloat64(a[key])
}

func (a Args) Bool(key string) bool {
	return cast.ToBool(a[key])
}

// IntE is Int with a conversion error for missing or non-numeric values.
func (a Args) IntE(key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	return cast.ToIntE(v)
}

// Float64E is Float64 with a conversion error for missing or non-numeric values.
func (a Args) Float64E(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	return cast.ToFloat64E(v)
}

// Decode fills dst (a pointer to a struct or map) from the arguments.
func (a Args) Decode(dst any) error {
	data, err := json.Marshal(map[string]any(a))
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to bind arguments: %w", err)
	}
	return nil
}

// filterArgs returns the subset of payload accepted by a listener.
func filterArgs(payload any, params map[string]struct{}, acceptsAny bool) Args {
	m, ok := payload.(map[string]any)
	if !ok {
		return Args{}
	}
	args := make(Args, len(m))
	for k, v := range m {
		if acceptsAny {
			args[k] = v
			continue
		}
		if _, ok := params[k]; ok {
			args[k] = v
		}
	}
	return args
}
