package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"craftshop-backend/internal/cart"
	"craftshop-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type ProductRepo interface {
	PutProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Images      []string
	Bestseller  bool
}

type CatalogService struct {
	Repo ProductRepo
	Now  func() time.Time
}

func (s *CatalogService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CatalogService) Add(ctx context.Context, caller domain.Caller, in ProductInput) (*domain.Product, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.Category) == "" {
		return nil, ErrBadRequest("name, description and category required")
	}
	if in.Price.IsNegative() {
		return nil, ErrBadRequest("price must not be negative")
	}
	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, ErrBadRequest("at least 1 image required")
	}
	p := &domain.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		Images:      images,
		Bestseller:  in.Bestseller,
		CreatedAt:   s.now(),
	}
	if err := s.Repo.PutProduct(ctx, p); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"product_id": p.ID, "name": p.Name}).Info("product added")
	return p, nil
}

func (s *CatalogService) List(ctx context.Context) ([]domain.Product, error) {
	return s.Repo.ListProducts(ctx)
}

func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNotFound("product")
	}
	return p, err
}

func (s *CatalogService) Remove(ctx context.Context, caller domain.Caller, id string) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	err := s.Repo.DeleteProduct(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrNotFound("product")
	}
	if err == nil {
		log.WithField("product_id", id).Info("product removed")
	}
	return err
}

// PriceList resolves current catalog prices for the cart.
func (s *CatalogService) PriceList(ctx context.Context) (cart.PriceList, error) {
	ps, err := s.Repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(cart.PriceList, len(ps))
	for _, p := range ps {
		out[p.ID] = p.Price
	}
	return out, nil
}
