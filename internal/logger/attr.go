package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers return an empty Attr for zero values so they can be
// passed unconditionally, e.g. log.Info("msg", logger.Error(err)).

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Subject(subject string) slog.Attr {
	if subject == "" {
		return slog.Attr{}
	}
	return slog.String("subject", subject)
}

func Channel(channel string) slog.Attr {
	if channel == "" {
		return slog.Attr{}
	}
	return slog.String("channel", channel)
}

func Pattern(pattern string) slog.Attr {
	if pattern == "" {
		return slog.Attr{}
	}
	return slog.String("pattern", pattern)
}

// RequestID creates an attribute for the request id carried in channel names.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Transport(driver string) slog.Attr {
	if driver == "" {
		return slog.Attr{}
	}
	return slog.String("transport", driver)
}
