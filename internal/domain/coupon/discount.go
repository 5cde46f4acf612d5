package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

var hundred = decimal.NewFromInt(100)

// Validate checks that value is usable for the discount type.
func (t Type) Validate(value decimal.Decimal) error {
	switch t {
	case FixedAmount:
		if value.IsNegative() {
			return apperr.Newf(apperr.ErrInvalidArgument, "fixed discount must not be negative, got %s", value)
		}
	case Percentage:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return apperr.Newf(apperr.ErrInvalidArgument, "percentage discount must be between 0 and 100, got %s", value)
		}
	default:
		return apperr.Newf(apperr.ErrInvalidArgument, "unsupported coupon type %q", string(t))
	}
	return nil
}

// Discount computes the amount this coupon takes off base. A fixed discount
// is capped at base; a percentage discount is rounded half up to two places.
func (c *Coupon) Discount(base decimal.Decimal) (decimal.Decimal, error) {
	if err := c.Type.Validate(c.Value); err != nil {
		return decimal.Zero, err
	}
	if base.IsNegative() {
		return decimal.Zero, apperr.Newf(apperr.ErrInvalidArgument, "discount base must not be negative, got %s", base)
	}

	switch c.Type {
	case Percentage:
		// Shift keeps the division exact before rounding.
		return base.Mul(c.Value).Shift(-2).Round(2), nil
	default:
		return decimal.Min(c.Value, base), nil
	}
}
