package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

const (
	findUserByLoginIDSQL = `SELECT id, login_id, email FROM users WHERE login_id = $1`

	createUserSQL = `INSERT INTO users (login_id, email) VALUES ($1, $2) RETURNING id`

	openPointsSQL = `INSERT INTO points (user_id, amount) VALUES ($1, 0)`

	findProductByIDSQL = `SELECT id, name, price, sellable FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products (name, price, sellable) VALUES ($1, $2, $3) RETURNING id`

	openStockSQL = `INSERT INTO stocks (product_id, quantity) VALUES ($1, 0)`
)

var (
	_ user.Repository    = (*UserRepository)(nil)
	_ product.Repository = (*ProductRepository)(nil)
)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByLoginID returns the user with the given login id.
func (r *UserRepository) FindByLoginID(ctx context.Context, loginID string) (*user.User, error) {
	rows, err := r.db.q(ctx).Query(ctx, findUserByLoginIDSQL, loginID)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", loginID, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (user.User, error) {
		var u user.User
		err := row.Scan(&u.ID, &u.LoginID, &u.Email)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", loginID, err)
	}
	return &u, nil
}

// Create inserts u together with its zero point balance.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if err := q.QueryRow(ctx, createUserSQL, u.LoginID, u.Email).Scan(&u.ID); err != nil {
			return fmt.Errorf("creating user %q: %w", u.LoginID, err)
		}
		if _, err := q.Exec(ctx, openPointsSQL, u.ID); err != nil {
			return fmt.Errorf("opening points for user %d: %w", u.ID, err)
		}
		return nil
	})
}

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID returns a single product by its identifier.
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, findProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Create inserts p and its stock row at zero.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if err := q.QueryRow(ctx, createProductSQL, p.Name, p.Price, p.Sellable).Scan(&p.ID); err != nil {
			return fmt.Errorf("creating product %q: %w", p.Name, err)
		}
		if _, err := q.Exec(ctx, openStockSQL, p.ID); err != nil {
			return fmt.Errorf("opening stock for product %d: %w", p.ID, err)
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Sellable)
	return p, err
}
