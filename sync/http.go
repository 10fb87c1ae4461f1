package sync

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// BreakerSettings tunes the circuit breaker wrapped around remote calls.
type BreakerSettings struct {
	MaxRequests         uint32        `yaml:"maxRequests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
}

// DefaultBreakerSettings returns the breaker tuning used when none is configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// newCircuitBreaker opens after more than ConsecutiveFailures transport failures.
// Errors answered by the remote API itself count as successful calls.
func newCircuitBreaker(name string, settings BreakerSettings) *gobreaker.CircuitBreaker[struct{}] {
	defaults := DefaultBreakerSettings()
	if settings.MaxRequests == 0 {
		settings.MaxRequests = defaults.MaxRequests
	}
	if settings.Interval == 0 {
		settings.Interval = defaults.Interval
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaults.Timeout
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = defaults.ConsecutiveFailures
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr)
		},
	})
}
