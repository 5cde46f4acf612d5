// Package handler exposes the order, point and coupon operations over HTTP.
// The caller is identified by the login id in the X-USER-ID header.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

const (
	// UserIDHeader carries the caller's login id.
	UserIDHeader = "X-USER-ID"
	// IdempotencyKeyHeader makes order submission safe to retry.
	IdempotencyKeyHeader = "Idempotency-Key"

	maxBodyBytes         = 1 << 20
	maxIdempotencyKeyLen = 128
)

// OrderService is the order use case consumed by the handler.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, loginID string, orderID int64) (*order.Order, error)
	ListOrders(ctx context.Context, loginID string) ([]*order.Order, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	orders  OrderService
	users   user.Finder
	points  *point.Ledger
	coupons *coupon.Ledger
}

// New constructs a Handler.
func New(orders OrderService, users user.Finder, points *point.Ledger, coupons *coupon.Ledger) *Handler {
	return &Handler{
		orders:  orders,
		users:   users,
		points:  points,
		coupons: coupons,
	}
}

// Mount registers the API routes on r. placeOrder middlewares wrap only
// order submission.
func (h *Handler) Mount(r chi.Router, placeOrder ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(placeOrder...).Post("/", h.PlaceOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{orderID}", h.GetOrder)
		})
		r.Get("/points", h.GetPoints)
		r.Post("/points/charge", h.ChargePoints)
		r.Get("/coupons", h.ListCoupons)
	})
}

func loginID(r *http.Request) (string, error) {
	id := r.Header.Get(UserIDHeader)
	if id == "" {
		return "", apperr.New(apperr.ErrInvalidArgument, UserIDHeader+" header is required")
	}
	return id, nil
}

func (h *Handler) caller(r *http.Request) (*user.User, error) {
	id, err := loginID(r)
	if err != nil {
		return nil, err
	}
	u, err := h.users.FindByLoginID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "user", Key: id}
		}
		return nil, errors.Wrap(err, "find user")
	}
	return u, nil
}
