package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"craftshop-backend/internal/domain"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	r := &PostgresRepo{db: db}
	if err := r.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

func (r *PostgresRepo) init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		category TEXT,
		images TEXT,
		bestseller BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		items TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		delivery_fee NUMERIC(12,2) NOT NULL,
		address TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_order_id TEXT,
		gateway_payment_id TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC);`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS orders_gateway_payment_idx ON orders (gateway_payment_id) WHERE gateway_payment_id <> '';`)
	return err
}

func (r *PostgresRepo) PutProduct(ctx context.Context, p *domain.Product) error {
	images, _ := json.Marshal(p.Images)
	_, err := r.db.ExecContext(ctx, `INSERT INTO products (id,name,description,price,category,images,bestseller,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET name=$2,description=$3,price=$4,category=$5,images=$6,bestseller=$7`,
		p.ID, p.Name, p.Description, p.Price, p.Category, string(images), p.Bestseller, p.CreatedAt)
	return err
}

const productColumns = `id,name,description,price,category,images,bestseller,created_at`

func scanProduct(sc interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var images string
	if err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &images, &p.Bestseller, &p.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(images), &p.Images)
	return &p, nil
}

func (r *PostgresRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *PostgresRepo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderColumns = `order_id,user_id,items,amount,delivery_fee,address,payment_method,payment_status,status,gateway_order_id,gateway_payment_id,version,created_at,updated_at`

func (r *PostgresRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	addr, err := json.Marshal(o.Address)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.UserID, string(items), o.Amount, o.DeliveryFee, string(addr), string(o.PaymentMethod), string(o.PaymentStatus),
		string(o.Status), o.GatewayOrderID, o.GatewayPaymentID, o.Version, o.CreatedAt, o.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.ErrDuplicate
	}
	return err
}

func scanOrder(sc interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	var items, addr string
	err := sc.Scan(&o.ID, &o.UserID, &items, &o.Amount, &o.DeliveryFee, &addr, (*string)(&o.PaymentMethod), (*string)(&o.PaymentStatus),
		(*string)(&o.Status), &o.GatewayOrderID, &o.GatewayPaymentID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(addr), &o.Address); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return o, err
}

// UpdateOrderStatus only writes when the stored version still matches.
func (r *PostgresRepo) UpdateOrderStatus(ctx context.Context, id string, version int64, status domain.OrderStatus, at time.Time) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `UPDATE orders SET status=$3, version=version+1, updated_at=$4
		WHERE order_id=$1 AND version=$2 RETURNING `+orderColumns, id, version, string(status), at))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrStaleVersion
}

func (r *PostgresRepo) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, order_id ASC`, userID)
}

func (r *PostgresRepo) ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	page, pageSize = pageBounds(page, pageSize)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if page-1 >= (total+pageSize-1)/pageSize {
		return []domain.Order{}, total, nil
	}
	out, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, order_id ASC LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresRepo) queryOrders(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
