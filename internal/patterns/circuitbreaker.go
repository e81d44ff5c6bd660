package patterns

import (
	"errors"
	"fmt"
	"time"

	"craftshop-backend/internal/metrics"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Breaker wraps gobreaker and reports state to prometheus.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	// FailureRatio trips the breaker once at least MinRequests were made.
	FailureRatio float64
	// IsSuccessful decides whether an error counts as a failure.
	IsSuccessful func(err error) bool
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func NewBreaker(name string, s BreakerSettings) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		IsSuccessful: s.IsSuccessful,
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(metrics.Service, cbName).Set(stateValue(to))
			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(metrics.Service, name).Set(0)
	return &Breaker{cb: cb, name: name}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(metrics.Service, b.name).Inc()
		return out, FormatError(b.name, err)
	}
	return out, nil
}

func (b *Breaker) State() string { return b.cb.State().String() }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// ErrCircuitOpen is returned, wrapped, while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

func FormatError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker %s: %w", name, ErrCircuitOpen)
	}
	return err
}
