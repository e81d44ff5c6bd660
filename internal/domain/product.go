package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	Bestseller  bool            `json:"bestseller"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (p *Product) Clone() *Product {
	cp := *p
	cp.Images = append([]string(nil), p.Images...)
	return &cp
}
