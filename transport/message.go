package transport

import (
	"github.com/tidwall/match"
)

type (
	// Message is a single delivery from a pattern subscription.
	// Pattern is the subscribed pattern that matched Channel.
	Message struct {
		Pattern string
		Channel string
		Payload []byte
	}

	// Subscription is an active pattern subscription. Messages are delivered
	// serially on the returned channel, which is closed once the subscription ends.
	Subscription interface {
		Messages() <-chan Message
		Close() error
	}
)

// Match reports whether channel matches the glob pattern using the same rules
// as redis PSUBSCRIBE ('*' any sequence, '?' any single character).
func Match(pattern, channel string) bool {
	return match.Match(channel, pattern)
}

// MatchAny returns every pattern from patterns that matches channel.
func MatchAny(patterns []string, channel string) []string {
	var matched []string
	for _, p := range patterns {
		if Match(p, channel) {
			matched = append(matched, p)
		}
	}
	return matched
}
