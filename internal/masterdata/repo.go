// Package masterdata exposes the read-only reference lookups the document
// engine needs: customers, suppliers and products. Full CRUD on these
// entities lives outside the core.
package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otrixindiacloud/tradeflow/internal/shared"
)

// Customer reference data.
type Customer struct {
	ID       int64
	Name     string
	Currency string
}

// Supplier reference data.
type Supplier struct {
	ID       int64
	Name     string
	Currency string
}

// Product reference data.
type Product struct {
	ID   int64
	SKU  string
	Name string
}

// Repository reads reference rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCustomer returns customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, currency FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
		}
		return Customer{}, err
	}
	return c, nil
}

// GetSupplier returns supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, currency FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
		}
		return Supplier{}, err
	}
	return s, nil
}

// GetProduct returns product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return Product{}, err
	}
	return p, nil
}

// Customers exposes the existence check the quotation service needs.
func (r *Repository) Customers() Customers { return Customers{repo: r} }

// Suppliers exposes the existence check the procurement service needs.
func (r *Repository) Suppliers() Suppliers { return Suppliers{repo: r} }

// Products exposes the existence check the order service needs.
func (r *Repository) Products() Products { return Products{repo: r} }

type Customers struct{ repo *Repository }

func (c Customers) Exists(ctx context.Context, id int64) error {
	_, err := c.repo.GetCustomer(ctx, id)
	return err
}

type Suppliers struct{ repo *Repository }

func (s Suppliers) Exists(ctx context.Context, id int64) error {
	_, err := s.repo.GetSupplier(ctx, id)
	return err
}

type Products struct{ repo *Repository }

func (p Products) Exists(ctx context.Context, id int64) error {
	_, err := p.repo.GetProduct(ctx, id)
	return err
}
