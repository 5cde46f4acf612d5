package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "read request body: %v", err)
	}
	return body, nil
}

func malformed(err error) error {
	return apperr.Newf(apperr.ErrInvalidArgument, "malformed request body: %v", err)
}

func decodePlaceOrder(body []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.LineItem
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						it.ProductID, err = d.Int64()
					case "quantity":
						it.Quantity, err = d.Int64()
					default:
						err = d.Skip()
					}
					return err
				})
				req.Items = append(req.Items, it)
				return err
			})
		case "couponIds":
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Int64()
				req.CouponIDs = append(req.CouponIDs, id)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.PlaceOrderRequest{}, malformed(err)
	}
	return req, nil
}

// decodeCharge reads {"amount": "1000"}. A bare JSON number is accepted too.
func decodeCharge(body []byte) (decimal.Decimal, error) {
	var (
		amount decimal.Decimal
		seen   bool
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "amount" {
			return d.Skip()
		}
		seen = true
		var raw string
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			raw = s
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			raw = n.String()
		default:
			return errors.Errorf("amount must be a string or number, got %s", d.Next())
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrap(err, "amount")
		}
		amount = v
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, malformed(err)
	}
	if !seen {
		return decimal.Decimal{}, apperr.New(apperr.ErrInvalidArgument, "amount is required")
	}
	return amount, nil
}

// writeOrder encodes money as JSON strings, keeping every decimal digit.
func writeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID())
	e.FieldStart("userId")
	e.Int64(o.UserID())
	e.FieldStart("status")
	e.Str(string(o.Status()))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items() {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("productId")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int64(it.Quantity)
		e.FieldStart("unitPrice")
		e.Str(it.UnitPrice.String())
		e.FieldStart("totalAmount")
		e.Str(it.TotalAmount.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalPrice")
	e.Str(o.TotalPrice().String())
	e.FieldStart("discountAmount")
	e.Str(o.DiscountAmount().String())
	e.FieldStart("shippingFee")
	e.Str(o.ShippingFee().String())
	e.FieldStart("finalAmount")
	e.Str(o.FinalAmount().String())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt().UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeOrder(o *order.Order) []byte {
	var e jx.Encoder
	writeOrder(&e, o)
	return e.Bytes()
}

func encodeOrders(orders []*order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range orders {
		writeOrder(&e, o)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodePoints(loginID string, amount decimal.Decimal) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(loginID)
	e.FieldStart("amount")
	e.Str(amount.String())
	e.ObjEnd()
	return e.Bytes()
}

func encodeCoupons(coupons []coupon.Coupon) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range coupons {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(c.ID)
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("value")
		e.Str(c.Value.String())
		e.FieldStart("createdAt")
		e.Str(c.CreatedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps err to its status and {"code","message"} body. Errors that
// are not business outcomes are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status, msg := apperr.Code(err), apperr.Status(err), err.Error()
	if !apperr.IsBusiness(err) {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
