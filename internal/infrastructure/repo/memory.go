package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"craftshop-backend/internal/domain"
)

type MemoryProductRepo struct {
	mu sync.RWMutex
	m  map[string]*domain.Product
}

func NewMemoryProductRepo() *MemoryProductRepo {
	return &MemoryProductRepo{m: make(map[string]*domain.Product)}
}

func (r *MemoryProductRepo) PutProduct(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID] = p.Clone()
	return nil
}

func (r *MemoryProductRepo) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryProductRepo) ListProducts(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.m))
	for _, p := range r.m {
		out = append(out, *p.Clone())
	}
	sortProducts(out)
	return out, nil
}

func (r *MemoryProductRepo) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m, id)
	return nil
}

type MemoryOrderRepo struct {
	mu sync.RWMutex
	m  map[string]*domain.Order
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{m: make(map[string]*domain.Order)}
}

func (r *MemoryOrderRepo) InsertOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[o.ID]; ok {
		return domain.ErrDuplicate
	}
	r.m[o.ID] = o.Clone()
	return nil
}

func (r *MemoryOrderRepo) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepo) UpdateOrderStatus(_ context.Context, id string, version int64, status domain.OrderStatus, at time.Time) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Version != version {
		return nil, domain.ErrStaleVersion
	}
	o.Status = status
	o.Version++
	o.UpdatedAt = at
	return o.Clone(), nil
}

func (r *MemoryOrderRepo) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range r.m {
		if o.UserID == userID {
			out = append(out, *o.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

func (r *MemoryOrderRepo) ListOrders(_ context.Context, page, pageSize int) ([]domain.Order, int, error) {
	r.mu.RLock()
	all := make([]domain.Order, 0, len(r.m))
	for _, o := range r.m {
		all = append(all, *o.Clone())
	}
	r.mu.RUnlock()
	sortOrders(all)
	out, total := paginate(all, page, pageSize)
	return out, total, nil
}

// sortOrders orders newest first, id as tie-break.
func sortOrders(os []domain.Order) {
	sort.Slice(os, func(i, j int) bool {
		if !os[i].CreatedAt.Equal(os[j].CreatedAt) {
			return os[i].CreatedAt.After(os[j].CreatedAt)
		}
		return os[i].ID < os[j].ID
	})
}

func sortProducts(ps []domain.Product) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds clamps page to at least 1 and pageSize to 1..maxPageSize.
func pageBounds(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func paginate(all []domain.Order, page, pageSize int) ([]domain.Order, int) {
	total := len(all)
	page, pageSize = pageBounds(page, pageSize)
	// Compare pages before multiplying so huge page numbers cannot overflow.
	if page-1 >= (total+pageSize-1)/pageSize {
		return []domain.Order{}, total
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}
