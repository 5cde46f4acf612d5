package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
)

// PlaceOrder handles POST /api/v1/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	login, err := loginID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, r, apperr.Newf(apperr.ErrInvalidArgument,
			"%s must be at most %d bytes", IdempotencyKeyHeader, maxIdempotencyKeyLen))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodePlaceOrder(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.LoginID = login
	req.IdempotencyKey = key

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeOrder(o))
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	login, err := loginID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, apperr.Newf(apperr.ErrInvalidArgument, "invalid order id %q", chi.URLParam(r, "orderID")))
		return
	}

	o, err := h.orders.GetOrder(r.Context(), login, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}

// ListOrders handles GET /api/v1/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	login, err := loginID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), login)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrders(orders))
}

var _ OrderService = (*order.Service)(nil)
