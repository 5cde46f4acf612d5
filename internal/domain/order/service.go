package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

const instrumentationName = "github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"

// Transactor runs fn inside one all-or-nothing unit of work. Every storage
// call made with the context passed to fn joins that unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLedger reserves product stock.
type StockLedger interface {
	Decrease(ctx context.Context, productID, qty int64) error
}

// PointLedger spends user points.
type PointLedger interface {
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal) error
}

// CouponLedger validates and redeems coupons.
type CouponLedger interface {
	Check(ctx context.Context, couponID, userID int64) (*coupon.Coupon, error)
	Apply(ctx context.Context, couponID int64, target coupon.Target) (decimal.Decimal, error)
}

// Deps lists the collaborators of Service.
type Deps struct {
	Tx       Transactor
	Users    user.Finder
	Products product.Finder
	Stock    StockLedger
	Points   PointLedger
	Coupons  CouponLedger
	Orders   Repository
}

// LineItem is one requested (product, quantity) pair.
type LineItem struct {
	ProductID int64
	Quantity  int64
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	LoginID   string
	Items     []LineItem
	CouponIDs []int64
	// IdempotencyKey, when set, makes repeated submissions by the same user
	// return the order created by the first one.
	IdempotencyKey string
}

// Option configures a Service.
type Option func(*options)

type options struct {
	shippingFee    decimal.Decimal
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithShippingFee sets the fee added to every order.
func WithShippingFee(fee decimal.Decimal) Option {
	return func(o *options) { o.shippingFee = fee }
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// Service places and reads orders.
type Service struct {
	tx       Transactor
	users    user.Finder
	products product.Finder
	stock    StockLedger
	points   PointLedger
	coupons  CouponLedger
	orders   Repository

	shippingFee decimal.Decimal
	now         func() time.Time

	tracer trace.Tracer
	placed   metric.Int64Counter
	replayed metric.Int64Counter
	failed   metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	o := options{
		shippingFee:    decimal.Zero,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shippingFee.IsNegative() {
		return nil, errors.Errorf("shipping fee must not be negative, got %s", o.shippingFee)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders confirmed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	replayed, err := meter.Int64Counter("orders.replayed",
		metric.WithDescription("Repeated submissions answered with an existing order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create replayed counter")
	}
	failed, err := meter.Int64Counter("orders.failed",
		metric.WithDescription("Order placements rolled back, by error kind"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		tx:          deps.Tx,
		users:       deps.Users,
		products:    deps.Products,
		stock:       deps.Stock,
		points:      deps.Points,
		coupons:     deps.Coupons,
		orders:      deps.Orders,
		shippingFee: o.shippingFee,
		now:         time.Now,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		placed:      placed,
		replayed:    replayed,
		failed:      failed,
	}, nil
}

// PlaceOrder reserves stock, redeems coupons, spends points and stores a
// confirmed order, all in one transaction. On any error nothing is changed.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(
			attribute.String("order.login_id", req.LoginID),
			attribute.Int("order.items", len(req.Items)),
			attribute.Int("order.coupons", len(req.CouponIDs)),
		),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("login_id", req.LoginID))

	o, replayed, err := s.placeOrder(ctx, req)
	if err != nil {
		kind := apperr.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
		if apperr.IsBusiness(err) {
			lg.Info("Order rejected", zap.String("kind", kind), zap.Error(err))
		} else {
			lg.Error("Order failed", zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", o.ID()),
		attribute.Bool("order.replayed", replayed),
	)
	if replayed {
		s.replayed.Add(ctx, 1)
		lg.Info("Order replayed",
			zap.Int64("order_id", o.ID()),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return o, nil
	}
	s.placed.Add(ctx, 1)
	lg.Info("Order placed",
		zap.Int64("order_id", o.ID()),
		zap.Stringer("total_price", o.TotalPrice()),
		zap.Stringer("discount", o.DiscountAmount()),
		zap.Stringer("final_amount", o.FinalAmount()),
	)
	return o, nil
}

// placeOrder reports replayed when the order was created by an earlier
// submission carrying the same idempotency key.
func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, replayed bool, _ error) {
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	var (
		placed *Order
		userID int64
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.findUser(ctx, req.LoginID)
		if err != nil {
			return err
		}
		userID = u.ID

		if req.IdempotencyKey != "" {
			// Submissions sharing a key run one after another, so a retry
			// sees the first order instead of racing it for stock.
			if err := s.orders.LockIdempotencyKey(ctx, u.ID, req.IdempotencyKey); err != nil {
				return errors.Wrap(err, "lock idempotency key")
			}
			existing, err := s.orders.FindByIdempotencyKey(ctx, u.ID, req.IdempotencyKey)
			switch {
			case err == nil:
				placed, replayed = existing, true
				return nil
			case !errors.Is(err, ErrNotFound):
				return errors.Wrap(err, "find order by idempotency key")
			}
		}

		// Reject unusable coupons before any ledger is touched.
		for _, id := range req.CouponIDs {
			if _, err := s.coupons.Check(ctx, id, u.ID); err != nil {
				return err
			}
		}

		o, err := New(u.ID, s.shippingFee)
		if err != nil {
			return err
		}

		// Ascending product order keeps concurrent orders from deadlocking on
		// each other's stock rows.
		for _, it := range sortedItems(req.Items) {
			p, err := s.products.FindByID(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &apperr.NotFoundError{Entity: "product", Key: it.ProductID}
				}
				return errors.Wrap(err, "find product")
			}
			if !p.Sellable {
				return &product.NotSellableError{ProductID: p.ID}
			}
			if err := s.stock.Decrease(ctx, p.ID, it.Quantity); err != nil {
				return err
			}
			if err := o.AddItem(p.ID, p.Price, it.Quantity); err != nil {
				return err
			}
		}

		o.SetIdempotencyKey(req.IdempotencyKey)
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		for _, id := range req.CouponIDs {
			if _, err := s.coupons.Apply(ctx, id, o); err != nil {
				return err
			}
		}

		if o.FinalAmount().IsPositive() {
			if err := s.points.Deduct(ctx, u.ID, o.FinalAmount()); err != nil {
				return err
			}
		}

		if err := o.Confirm(); err != nil {
			return err
		}
		o.Touch(s.now())
		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		placed = o
		return nil
	})
	if err != nil {
		// Whatever failed, an order already stored under the key is the
		// answer to this request.
		if req.IdempotencyKey != "" && userID != 0 {
			existing, findErr := s.orders.FindByIdempotencyKey(ctx, userID, req.IdempotencyKey)
			if findErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	return placed, replayed, nil
}

// GetOrder returns one of the caller's orders.
func (s *Service) GetOrder(ctx context.Context, loginID string, orderID int64) (*Order, error) {
	u, err := s.findUser(ctx, loginID)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "order", Key: orderID}
		}
		return nil, errors.Wrap(err, "find order")
	}
	if o.UserID() != u.ID {
		return nil, &apperr.NotFoundError{Entity: "order", Key: orderID}
	}
	return o, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, loginID string) ([]*Order, error) {
	u, err := s.findUser(ctx, loginID)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func (s *Service) findUser(ctx context.Context, loginID string) (*user.User, error) {
	u, err := s.users.FindByLoginID(ctx, loginID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "user", Key: loginID}
		}
		return nil, errors.Wrap(err, "find user")
	}
	return u, nil
}

func validateRequest(req PlaceOrderRequest) error {
	if req.LoginID == "" {
		return apperr.New(apperr.ErrInvalidArgument, "login id is required")
	}
	if len(req.Items) == 0 {
		return apperr.New(apperr.ErrInvalidArgument, "order must contain at least one item")
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return apperr.Newf(apperr.ErrInvalidArgument, "quantity must be positive for product %d, got %d", it.ProductID, it.Quantity)
		}
	}
	seen := make(map[int64]struct{}, len(req.CouponIDs))
	for _, id := range req.CouponIDs {
		if _, ok := seen[id]; ok {
			return apperr.Newf(apperr.ErrInvalidArgument, "coupon %d listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func sortedItems(items []LineItem) []LineItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b LineItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out
}
