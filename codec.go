package rpc

import (
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes v. Maps are encoded as they are, any other value is
// wrapped as {"data": v} so scalar and list results share one shape.
func Encode(v any) ([]byte, error) {
	if !isMapping(v) {
		v = map[string]any{"data": v}
	}
	return json.Marshal(v)
}

// Decode parses raw as a JSON value of any kind.
func Decode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
	}
	return v, nil
}

func isMapping(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map && !rv.IsNil()
}
