package memory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

var (
	_ user.Repository    = (*UserRepository)(nil)
	_ product.Repository = (*ProductRepository)(nil)
)

// UserRepository stores users.
type UserRepository struct {
	s *Store
}

// FindByLoginID implements user.Finder.
func (r *UserRepository) FindByLoginID(_ context.Context, loginID string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.logins[loginID]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := r.s.users[id]
	return &u, nil
}

// Create stores u with a new id and opens its point balance at zero.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.logins[u.LoginID]; ok {
		return errors.Errorf("login id %q already exists", u.LoginID)
	}
	r.s.seq.user++
	u.ID = r.s.seq.user
	r.s.users[u.ID] = *u
	r.s.logins[u.LoginID] = u.ID
	r.s.points[u.ID] = decimal.Zero

	id, login := u.ID, u.LoginID
	record(ctx, func() {
		delete(r.s.users, id)
		delete(r.s.logins, login)
		delete(r.s.points, id)
	})
	return nil
}

// ProductRepository stores products.
type ProductRepository struct {
	s *Store
}

// FindByID implements product.Finder.
func (r *ProductRepository) FindByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// Create stores p with a new id and a stock row at zero.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.product++
	p.ID = r.s.seq.product
	r.s.products[p.ID] = *p
	r.s.stock[p.ID] = 0

	id := p.ID
	record(ctx, func() {
		delete(r.s.products, id)
		delete(r.s.stock, id)
	})
	return nil
}
