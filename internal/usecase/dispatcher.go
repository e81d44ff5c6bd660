package usecase

import (
	"context"
	"sync"
	"time"

	"craftshop-backend/internal/domain"
	"craftshop-backend/internal/infrastructure/notify"
	"craftshop-backend/internal/metrics"
	"craftshop-backend/internal/patterns"

	log "github.com/sirupsen/logrus"
)

// Dispatcher sends order events in the background. Delivery failures are
// logged and counted, never returned.
type Dispatcher struct {
	Notifier notify.Notifier
	Timeout  time.Duration

	wg sync.WaitGroup
}

func NewDispatcher(n notify.Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = patterns.NotifyTimeout
	}
	return &Dispatcher{Notifier: n, Timeout: timeout}
}

func (d *Dispatcher) OrderCreated(ctx context.Context, o domain.Order) {
	d.send(ctx, notify.OrderCreated, o)
}

func (d *Dispatcher) StatusChanged(ctx context.Context, o domain.Order) {
	d.send(ctx, notify.OrderStatusChanged, o)
}

func (d *Dispatcher) send(parent context.Context, ev notify.Event, o domain.Order) {
	if d == nil || d.Notifier == nil {
		return
	}
	ctx, cancel := patterns.Detached(parent, d.Timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				metrics.NotificationsTotal.WithLabelValues(string(ev), "error").Inc()
				log.WithFields(log.Fields{"event": string(ev), "order_id": o.ID, "panic": r}).Error("notifier panicked")
			}
		}()
		if err := d.Notifier.Notify(ctx, ev, o); err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(ev), "error").Inc()
			log.WithFields(log.Fields{"event": string(ev), "order_id": o.ID}).WithError(err).Warn("notification failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues(string(ev), "ok").Inc()
	}()
}

// Wait blocks until every in-flight notification has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
