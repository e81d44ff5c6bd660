package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"craftshop-backend/internal/domain"
	"craftshop-backend/internal/infrastructure/razorpay"
	"craftshop-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type OrderRepo interface {
	InsertOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, version int64, status domain.OrderStatus, at time.Time) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error)
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (razorpay.Intent, error)
	FetchIntent(ctx context.Context, id string) (razorpay.Intent, error)
	VerifySignature(intentID, paymentID, signature string) bool
}

type DraftItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderDraft is what a client submits at checkout. Prices come from the
// catalog; TotalAmount, when set, must agree with them.
type OrderDraft struct {
	Items       []DraftItem            `json:"items"`
	Address     domain.ShippingAddress `json:"shippingAddress"`
	TotalAmount *decimal.Decimal       `json:"totalAmount,omitempty"`
}

const (
	defaultMinAmountMinor = 100
	maxStatusAttempts     = 3
)

var allowedMoves = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderProcessing: {domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled},
	domain.OrderShipped:    {domain.OrderDelivered, domain.OrderCancelled},
}

func canMove(from, to domain.OrderStatus) bool {
	for _, s := range allowedMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

type OrderService struct {
	Orders   OrderRepo
	Products ProductRepo
	Gateway  Gateway
	Notify   *Dispatcher

	Currency       string
	DeliveryFee    decimal.Decimal
	MinAmountMinor int64
	Now            func() time.Time
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

// CreateIntent mints a gateway intent for amount in major units.
// Nothing is stored.
func (s *OrderService) CreateIntent(ctx context.Context, amount decimal.Decimal) (razorpay.Intent, error) {
	minAmount := s.MinAmountMinor
	if minAmount <= 0 {
		minAmount = defaultMinAmountMinor
	}
	scaled := amount.Mul(decimal.NewFromInt(100)).Round(0)
	if !scaled.BigInt().IsInt64() {
		return razorpay.Intent{}, ErrInvalidAmount
	}
	minor := scaled.IntPart()
	if minor < minAmount {
		return razorpay.Intent{}, ErrInvalidAmount
	}
	receipt := "receipt_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	intent, err := s.Gateway.CreateIntent(ctx, minor, s.currency(), receipt)
	if err != nil {
		log.WithField("receipt", receipt).WithError(err).Error("create gateway intent")
		return razorpay.Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	metrics.PaymentAmount.Observe(amount.InexactFloat64())
	return intent, nil
}

func (s *OrderService) VerifyAndPlace(ctx context.Context, intentID, paymentID, signature string, draft OrderDraft, caller domain.Caller) (*domain.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(intentID) == "" || strings.TrimSpace(paymentID) == "" || signature == "" {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
		return nil, ErrBadRequest("razorpay order id, payment id and signature required")
	}
	o, err := s.build(ctx, draft, caller)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
		return nil, err
	}
	if !s.Gateway.VerifySignature(intentID, paymentID, signature) {
		metrics.PaymentVerifications.WithLabelValues("invalid").Inc()
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
		log.WithFields(log.Fields{
			"security":         "payment_signature_mismatch",
			"user_id":          caller.UserID,
			"razorpay_order":   intentID,
			"razorpay_payment": paymentID,
		}).Warn("payment signature rejected")
		return nil, ErrInvalidSignature
	}
	metrics.PaymentVerifications.WithLabelValues("valid").Inc()

	// The signature only binds the payment to the intent, so the intent
	// amount has to match what is being placed.
	intent, err := s.Gateway.FetchIntent(ctx, intentID)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
		if errors.Is(err, razorpay.ErrIntentNotFound) {
			return nil, ErrBadRequest("unknown razorpay order")
		}
		log.WithField("razorpay_order", intentID).WithError(err).Error("fetch gateway intent")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	want := o.Amount.Mul(decimal.NewFromInt(100)).Round(0)
	if !decimal.NewFromInt(intent.Amount).Equal(want) || !strings.EqualFold(intent.Currency, s.currency()) {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
		log.WithFields(log.Fields{
			"security":       "payment_amount_mismatch",
			"user_id":        caller.UserID,
			"razorpay_order": intentID,
			"paid_minor":     intent.Amount,
			"order_total":    o.Amount.String(),
		}).Warn("payment amount rejected")
		return nil, ErrBadRequest("paid amount does not match order total")
	}

	// One order per gateway payment. The id is derived from the payment id
	// so a replayed verification collides with the first insert.
	o.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("razorpay:"+paymentID)).String()
	o.PaymentMethod = domain.PaymentRazorpay
	o.PaymentStatus = domain.PaymentPaid
	o.GatewayOrderID = intentID
	o.GatewayPaymentID = paymentID

	if err := s.Orders.InsertOrder(ctx, o); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "error").Inc()
			return nil, err
		}
		existing, gerr := s.Orders.GetOrder(ctx, o.ID)
		if gerr != nil {
			return nil, gerr
		}
		if existing.UserID != caller.UserID || existing.GatewayOrderID != intentID {
			metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "rejected").Inc()
			return nil, ErrConflict("payment already used")
		}
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "replayed").Inc()
		log.WithFields(log.Fields{"order_id": existing.ID, "razorpay_payment": paymentID}).Info("payment verification replayed")
		return existing, nil
	}
	metrics.OrdersTotal.WithLabelValues(string(domain.PaymentRazorpay), "placed").Inc()
	log.WithFields(log.Fields{"order_id": o.ID, "user_id": o.UserID, "total": o.Amount.String()}).Info("order placed")
	s.Notify.OrderCreated(ctx, *o)
	return o, nil
}

func (s *OrderService) PlaceCOD(ctx context.Context, draft OrderDraft, caller domain.Caller) (*domain.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.build(ctx, draft, caller)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentCOD), "rejected").Inc()
		return nil, err
	}
	o.ID = uuid.NewString()
	o.PaymentMethod = domain.PaymentCOD
	o.PaymentStatus = domain.PaymentPending
	if err := s.Orders.InsertOrder(ctx, o); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(domain.PaymentCOD), "error").Inc()
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(domain.PaymentCOD), "placed").Inc()
	log.WithFields(log.Fields{"order_id": o.ID, "user_id": o.UserID, "total": o.Amount.String()}).Info("order placed")
	s.Notify.OrderCreated(ctx, *o)
	return o, nil
}

// build validates a draft against the catalog and returns an unsaved
// Processing order without id or payment fields.
func (s *OrderService) build(ctx context.Context, draft OrderDraft, caller domain.Caller) (*domain.Order, error) {
	if len(draft.Items) == 0 {
		return nil, ErrBadRequest("order has no items")
	}
	if err := validateAddress(draft.Address); err != nil {
		return nil, err
	}
	var (
		items []domain.OrderItem
		index = map[string]int{}
	)
	for _, di := range draft.Items {
		id := strings.TrimSpace(di.ProductID)
		if id == "" {
			return nil, ErrBadRequest("product id required")
		}
		if di.Quantity < 1 {
			return nil, ErrBadRequest("quantity must be at least 1")
		}
		if i, ok := index[id]; ok {
			items[i].Quantity += di.Quantity
			continue
		}
		p, err := s.Products.GetProduct(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound("product " + id)
		}
		if err != nil {
			return nil, err
		}
		it := domain.OrderItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: di.Quantity}
		if len(p.Images) > 0 {
			it.Image = p.Images[0]
		}
		index[id] = len(items)
		items = append(items, it)
	}
	now := s.now()
	o := &domain.Order{
		UserID:      caller.UserID,
		Items:       items,
		DeliveryFee: s.DeliveryFee,
		Address:     draft.Address,
		Status:      domain.OrderProcessing,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.Amount = o.Subtotal().Add(s.DeliveryFee)
	if draft.TotalAmount != nil && !draft.TotalAmount.Equal(o.Amount) {
		return nil, ErrBadRequest(fmt.Sprintf("amount %s does not match order total %s", draft.TotalAmount.String(), o.Amount.String()))
	}
	return o, nil
}

func validateAddress(a domain.ShippingAddress) error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"firstName", a.FirstName},
		{"phone", a.Phone},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zipcode", a.Zipcode},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return ErrBadRequest("address missing " + strings.Join(missing, ", "))
	}
	return nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, caller domain.Caller) (*domain.Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, ErrBadRequest("unknown order status " + strconv.Quote(string(status)))
	}
	return s.transition(ctx, orderID, status, func(o *domain.Order) error { return nil })
}

// Cancel lets an owner cancel an order that has not shipped yet. Orders of
// other users are reported as not found.
func (s *OrderService) Cancel(ctx context.Context, orderID string, caller domain.Caller) (*domain.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.transition(ctx, orderID, domain.OrderCancelled, func(o *domain.Order) error {
		if o.UserID != caller.UserID {
			return ErrNotFound("order")
		}
		if o.Status != domain.OrderProcessing && o.Status != domain.OrderCancelled {
			return ErrInvalidTransition
		}
		return nil
	})
}

func (s *OrderService) transition(ctx context.Context, orderID string, to domain.OrderStatus, check func(*domain.Order) error) (*domain.Order, error) {
	for attempt := 1; attempt <= maxStatusAttempts; attempt++ {
		cur, err := s.Orders.GetOrder(ctx, orderID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound("order")
		}
		if err != nil {
			return nil, err
		}
		if err := check(cur); err != nil {
			metrics.OrderStatusChanges.WithLabelValues(string(to), "rejected").Inc()
			return nil, err
		}
		if cur.Status == to {
			return cur, nil
		}
		if !canMove(cur.Status, to) {
			metrics.OrderStatusChanges.WithLabelValues(string(to), "rejected").Inc()
			return nil, ErrInvalidTransition
		}
		updated, err := s.Orders.UpdateOrderStatus(ctx, orderID, cur.Version, to, s.now())
		switch {
		case errors.Is(err, domain.ErrStaleVersion):
			log.WithFields(log.Fields{"order_id": orderID, "attempt": attempt}).Debug("stale order version, retrying")
			continue
		case errors.Is(err, domain.ErrNotFound):
			return nil, ErrNotFound("order")
		case err != nil:
			return nil, err
		}
		metrics.OrderStatusChanges.WithLabelValues(string(to), "applied").Inc()
		log.WithFields(log.Fields{"order_id": orderID, "from": string(cur.Status), "to": string(to)}).Info("order status changed")
		s.Notify.StatusChanged(ctx, *updated)
		return updated, nil
	}
	metrics.OrderStatusChanges.WithLabelValues(string(to), "conflict").Inc()
	return nil, ErrConflict("order was modified concurrently")
}

func (s *OrderService) ListForUser(ctx context.Context, caller domain.Caller) ([]domain.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	return s.Orders.ListOrdersByUser(ctx, caller.UserID)
}

func (s *OrderService) GetForUser(ctx context.Context, orderID string, caller domain.Caller) (*domain.Order, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && o.UserID != caller.UserID && !caller.IsAdmin()) {
		return nil, ErrNotFound("order")
	}
	return o, err
}

func (s *OrderService) ListAll(ctx context.Context, caller domain.Caller, page, pageSize int) ([]domain.Order, int, error) {
	if !caller.IsAdmin() {
		return nil, 0, ErrForbidden
	}
	return s.Orders.ListOrders(ctx, page, pageSize)
}
