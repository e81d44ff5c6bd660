package usecase

import (
	"context"

	"craftshop-backend/internal/cart"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Lines       []cart.Line     `json:"lines"`
	Count       int             `json:"count"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
	Pruned      []string        `json:"pruned"`
}

// CartService prices a client-held cart. It keeps no cart state.
type CartService struct {
	Catalog     *CatalogService
	DeliveryFee decimal.Decimal
}

func (s *CartService) Quote(ctx context.Context, snapshot map[string]int) (Quote, error) {
	prices, err := s.Catalog.PriceList(ctx)
	if err != nil {
		return Quote{}, err
	}
	c := cart.Restore(snapshot)
	pruned := c.Prune(prices)
	if pruned == nil {
		pruned = []string{}
	}
	q := Quote{
		Lines:       c.Lines(),
		Count:       c.Count(),
		Subtotal:    c.Amount(prices),
		DeliveryFee: decimal.Zero,
		Pruned:      pruned,
	}
	if q.Count > 0 {
		q.DeliveryFee = s.DeliveryFee
	}
	q.Total = q.Subtotal.Add(q.DeliveryFee)
	return q, nil
}
