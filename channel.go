package rpc

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Operation tags used in channel names.
const (
	OpNext      = "on_next"
	OpCompleted = "on_completed"
	OpError     = "on_error"

	separator = ":"

	// globChars have a meaning in subscription patterns.
	globChars = `*?[]\`
)

// named is implemented by handlers that carry their own subject.
type named interface {
	Name() string
}

// DeriveSubject returns override when it is set. Otherwise the subject is
// taken from the handler's Name method, or built from the runtime name of the
// handler function as <import path>.<qualified name>.
func DeriveSubject(h Handler, override string) string {
	if override != "" {
		return override
	}
	if n, ok := h.(named); ok {
		return n.Name()
	}
	return funcName(h)
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() {
		return ""
	}
	if v.Kind() != reflect.Func {
		return typeName(v.Type())
	}
	if v.IsNil() {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return fmt.Sprintf("%T", fn)
	}
	return normalizeFuncName(f.Name())
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// normalizeFuncName turns "pkg.(*T).M-fm" into "pkg.T.M" and
// "pkg.F[...].func1" into "pkg.F.func1".
func normalizeFuncName(name string) string {
	name = strings.TrimSuffix(name, "-fm")
	name = strings.ReplaceAll(name, "[...]", "")
	name = strings.ReplaceAll(name, "(*", "")
	name = strings.ReplaceAll(name, ")", "")
	return name
}

// validateSubject rejects subjects that cannot be embedded in a channel name
// or whose inbound pattern would also match other subjects.
func validateSubject(subject string) error {
	if subject == "" || strings.Contains(subject, separator) || strings.ContainsAny(subject, globChars) {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	return nil
}

// InboundPattern is the subscription pattern matching every request for subject.
func InboundPattern(subject string) string {
	return subject + separator + OpNext + separator + "*"
}

// NextChannel is the channel a request with the given id is published on.
func NextChannel(subject, id string) string {
	return channelName(subject, OpNext, id)
}

// CompletedChannel is the channel a result for id is published on.
func CompletedChannel(subject, id string) string {
	return channelName(subject, OpCompleted, id)
}

// ErrorChannel is the channel a failure for id is published on.
func ErrorChannel(subject, id string) string {
	return channelName(subject, OpError, id)
}

func channelName(subject, op, id string) string {
	return subject + separator + op + separator + id
}

// ParseChannel splits a channel into subject, operation and id on the first
// two separators. The id may itself contain separators.
func ParseChannel(channel string) (subject, op, id string, err error) {
	parts := strings.SplitN(channel, separator, 3)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedChannel, channel)
	}
	return parts[0], parts[1], parts[2], nil
}
