package handler

import (
	"net/http"
)

// GetPoints handles GET /api/v1/points.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	u, err := h.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.points.Balance(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePoints(u.LoginID, p.Amount))
}

// ChargePoints handles POST /api/v1/points/charge and answers with the new
// balance.
func (h *Handler) ChargePoints(w http.ResponseWriter, r *http.Request) {
	u, err := h.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := decodeCharge(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.points.Charge(r.Context(), u.ID, amount); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.points.Balance(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePoints(u.LoginID, p.Amount))
}

// ListCoupons handles GET /api/v1/coupons, listing the caller's unused
// coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	u, err := h.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	coupons, err := h.coupons.Available(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCoupons(coupons))
}
