package transport

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewPublishBreaker builds the gobreaker instance wrapping
// KafkaTransport's producer. It trips after 10+ requests with a >=50%
// failure ratio within the rolling interval, matching repeated
// backpressure/failure results from the broker.
func NewPublishBreaker(name string, logger *zap.Logger, onStateChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("publish circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
