package rpc

import (
	"context"
	"reflect"
	"strings"
)

type (
	// Handler is the function a listener invokes.
	Handler interface {
		Call(ctx context.Context, args Args) (any, error)
	}

	// HandlerFunc adapts a plain function to Handler. Its subject is derived
	// from the function's runtime name.
	HandlerFunc func(ctx context.Context, args Args) (any, error)

	// ParamsDeclarer is implemented by handlers that know which argument names
	// they accept. acceptsAny reports arbitrary keyword acceptance.
	ParamsDeclarer interface {
		Params() (names []string, acceptsAny bool)
	}
)

func (f HandlerFunc) Call(ctx context.Context, args Args) (any, error) {
	return f(ctx, args)
}

// Name keeps the subject of the wrapped function rather than the adapter.
func (f HandlerFunc) Name() string {
	return funcName((func(context.Context, Args) (any, error))(f))
}

type typedHandler[T, R any] struct {
	name       string
	fn         func(context.Context, T) (R, error)
	params     []string
	acceptsAny bool
}

// NewTypedHandler builds a handler whose arguments are bound into T.
// For struct types the accepted argument names are the json names of the
// exported fields; map types accept any argument.
//
// Example:
//
//	type MulArgs struct {
//	    X int `json:"x"`
//	    Y int `json:"y"`
//	}
//
//	h := rpc.NewTypedHandler(func(ctx context.Context, a MulArgs) (int, error) {
//	    return a.X * a.Y, nil
//	})
func NewTypedHandler[T, R any](fn func(context.Context, T) (R, error)) Handler {
	var zero T
	params, acceptsAny := paramsOf(reflect.TypeOf(zero))
	return &typedHandler[T, R]{
		name:       funcName(fn),
		fn:         fn,
		params:     params,
		acceptsAny: acceptsAny,
	}
}

func (h *typedHandler[T, R]) Name() string {
	return h.name
}

func (h *typedHandler[T, R]) Params() ([]string, bool) {
	return h.params, h.acceptsAny
}

func (h *typedHandler[T, R]) Call(ctx context.Context, args Args) (any, error) {
	var in T
	if err := args.Decode(&in); err != nil {
		return nil, err
	}
	return h.fn(ctx, in)
}

func paramsOf(t reflect.Type) ([]string, bool) {
	if t == nil {
		return nil, true
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, true
	}

	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		names = append(names, name)
	}
	return names, false
}
