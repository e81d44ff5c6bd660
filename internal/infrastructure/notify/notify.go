// Package notify delivers order events to customers, the shop owner and
// downstream consumers. Every Notifier is best-effort.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"craftshop-backend/internal/domain"

	log "github.com/sirupsen/logrus"
)

type Event string

const (
	OrderCreated       Event = "order.created"
	OrderStatusChanged Event = "order.status_changed"
)

type Notifier interface {
	Notify(ctx context.Context, ev Event, o domain.Order) error
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event, o domain.Order) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the event to the structured log.
type Log struct{}

func (Log) Notify(_ context.Context, ev Event, o domain.Order) error {
	log.WithFields(log.Fields{
		"event":    string(ev),
		"order_id": o.ID,
		"user_id":  o.UserID,
		"status":   string(o.Status),
		"total":    o.Amount.String(),
	}).Info("order event")
	return nil
}

func itemsList(items []domain.OrderItem) string {
	if len(items) == 0 {
		return "Order details"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, ", ")
}

func customerMessage(ev Event, o domain.Order) string {
	if ev == OrderStatusChanged {
		return fmt.Sprintf("Hi %s! Your Yarn Yapper order %s is now %s.\n\n- Yarn Yapper Team",
			o.Address.FirstName, o.ID, o.Status)
	}
	return fmt.Sprintf("Hi %s!\n\nThank you for your order at Yarn Yapper!\n\nOrder ID: %s\nItems: %s\nTotal: ₹%s\n\n"+
		"We'll start crafting your handmade items with love. You'll receive updates soon!\n\n- Yarn Yapper Team",
		o.Address.FirstName, o.ID, itemsList(o.Items), o.Amount.StringFixed(2))
}

func adminMessage(o domain.Order) string {
	return fmt.Sprintf("NEW ORDER RECEIVED!\n\nOrder ID: %s\nCustomer: %s\nPhone: %s\nItems: %s\nTotal: ₹%s\nPayment: %s (%s)\n\n"+
		"Check your dashboard for details.",
		o.ID, o.Address.FullName(), o.Address.Phone, itemsList(o.Items), o.Amount.StringFixed(2), o.PaymentMethod, o.PaymentStatus)
}
