package broker

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerFeed wraps a Feed with circuit breaker functionality so that
// a flapping upstream is shed instead of hammered.
type CircuitBreakerFeed struct {
	feed    Feed
	breaker *gobreaker.CircuitBreaker
}

var _ Feed = (*CircuitBreakerFeed)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerFeed creates a CircuitBreakerFeed with sensible defaults.
func NewCircuitBreakerFeed(feed Feed, logger *logrus.Logger) *CircuitBreakerFeed {
	return NewCircuitBreakerFeedWithSettings(feed, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerFeedWithSettings creates a CircuitBreakerFeed with custom settings.
func NewCircuitBreakerFeedWithSettings(feed Feed, logger *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerFeed {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "FeedCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerFeed{
		feed:    feed,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, feed Feed, fn func(Feed) (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(feed) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Instruments wraps the underlying feed call with the circuit breaker.
func (c *CircuitBreakerFeed) Instruments() ([]InstrumentRow, error) {
	return execBreaker(c.breaker, c.feed, func(f Feed) ([]InstrumentRow, error) { return f.Instruments() })
}

// LastPrices wraps the underlying feed call with the circuit breaker.
func (c *CircuitBreakerFeed) LastPrices(securityIDs []string) (map[string]float64, error) {
	return execBreaker(c.breaker, c.feed, func(f Feed) (map[string]float64, error) { return f.LastPrices(securityIDs) })
}
