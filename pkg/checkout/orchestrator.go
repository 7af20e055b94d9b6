// Package checkout commits a cart as an order: it mints the order id,
// deducts stock and writes the order in one optimistic transaction.
package checkout

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/sequence"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Request is one checkout attempt.
type Request struct {
	CustomerID     string
	Lines          []models.CartLine
	Delivery       models.DeliveryInfo
	TotalAmount    float64
	AgreedToTerms  bool
	OrderType      models.OrderType
	SubscriptionID string
	// IsManual marks orders entered by an admin; they start CONFIRMED.
	IsManual bool
	// ComputeTotal replaces TotalAmount with the total priced from the
	// in-transaction snapshot.
	ComputeTotal bool
}

type Orchestrator struct {
	store            Store
	logger           *zap.Logger
	now              func() time.Time
	defaultCutCharge float64
}

type Option func(*Orchestrator)

// WithClock overrides the server clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDefaultCutCharge sets the per-unit cut charge for products without one.
func WithDefaultCutCharge(charge float64) Option {
	return func(o *Orchestrator) { o.defaultCutCharge = charge }
}

func NewOrchestrator(store Store, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// demand is the cart grouped by product, in first-seen order.
type demand struct {
	ids   []string
	lines map[string][]models.CartLine
	names map[string]string
}

func groupByProduct(lines []models.CartLine) demand {
	d := demand{
		lines: make(map[string][]models.CartLine),
		names: make(map[string]string),
	}
	for _, l := range lines {
		if _, seen := d.lines[l.ProductID]; !seen {
			d.ids = append(d.ids, l.ProductID)
			d.names[l.ProductID] = l.Name
		}
		d.lines[l.ProductID] = append(d.lines[l.ProductID], l)
	}
	return d
}

// ValidateLines checks the structural shape of a cart. Stock and catalog
// checks happen inside the transaction.
func ValidateLines(lines []models.CartLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	for i, l := range lines {
		if l.ProductID == "" {
			return fmt.Errorf("%w: line %d has no product", ErrInvalidCart, i)
		}
		if !(l.Quantity > 0) || math.IsInf(l.Quantity, 0) {
			return fmt.Errorf("%w: line %d has quantity %g", ErrInvalidCart, i, l.Quantity)
		}
	}
	return nil
}

// Commit runs the checkout transaction once. It returns the stored order,
// a *ledger.StockError, or an error matching ErrCounterConflict or
// ErrTransactionAborted. It never retries.
func (o *Orchestrator) Commit(ctx context.Context, req Request) (*models.Order, error) {
	if err := ValidateLines(req.Lines); err != nil {
		return nil, err
	}
	d := groupByProduct(req.Lines)

	var order *models.Order
	err := o.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		order = nil

		counter, err := tx.GetCounter(ctx)
		if err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		products, err := tx.GetProducts(ctx, d.ids)
		if err != nil {
			return fmt.Errorf("read products: %w", err)
		}

		updated := make([]*models.Product, 0, len(d.ids))
		for _, id := range d.ids {
			p, ok := products[id]
			if !ok {
				return &ledger.StockError{Kind: ledger.ErrProductNotFound, ProductID: id, ProductName: d.names[id]}
			}
			res, err := ledger.Apply(p, d.lines[id])
			if err != nil {
				return err
			}
			for _, s := range res.Skipped {
				o.logger.Warn("Skipped stock deduction for unresolvable unit",
					zap.String("product_id", p.ID),
					zap.String("variant_id", s.VariantID),
					zap.String("variant_unit", s.VariantUnit),
					zap.String("base_unit", p.Unit),
					zap.Float64("quantity", s.Quantity))
			}
			updated = append(updated, res.Product)
		}

		next, orderID := sequence.Next(counter)
		built := o.buildOrder(orderID, req, products)

		nextCounter := &models.Counter{ID: models.OrderCounterID, LastID: next}
		if counter != nil {
			nextCounter.Version = counter.Version
		}
		if err := tx.PutCounter(ctx, nextCounter); err != nil {
			return fmt.Errorf("write counter: %w", err)
		}
		for _, p := range updated {
			if err := tx.PutProduct(ctx, p); err != nil {
				return fmt.Errorf("write product %s: %w", p.ID, err)
			}
		}
		if err := tx.InsertOrder(ctx, built); err != nil {
			return fmt.Errorf("write order %s: %w", orderID, err)
		}
		order = built
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return order, nil
}

func (o *Orchestrator) buildOrder(id string, req Request, products map[string]*models.Product) *models.Order {
	now := o.now()

	items := make([]models.OrderItem, 0, len(req.Lines))
	computed := decimal.Zero
	for _, l := range req.Lines {
		item := o.snapshotItem(l, products[l.ProductID])
		qty := decimal.NewFromFloat(item.Quantity)
		lineTotal := decimal.NewFromFloat(item.PriceAtOrder).Add(decimal.NewFromFloat(item.CutCharge)).Mul(qty)
		computed = computed.Add(lineTotal)
		items = append(items, item)
	}

	total := req.TotalAmount
	computedTotal := computed.Round(2).InexactFloat64()
	if req.ComputeTotal {
		total = computedTotal
	} else if math.Abs(total-computedTotal) > 0.005 {
		o.logger.Warn("Client total differs from snapshot prices",
			zap.String("order_id", id),
			zap.Float64("client_total", total),
			zap.Float64("snapshot_total", computedTotal))
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = models.OrderTypeOneTime
	}
	status := models.StatusPending
	if req.IsManual {
		status = models.StatusConfirmed
	}
	place := req.Delivery.DeliveryPlace
	if place == "" {
		place = req.Delivery.Address
	}
	date := req.Delivery.DeliveryDate
	if date == "" {
		date = now.Format(time.DateOnly)
	}

	return &models.Order{
		ID:             id,
		CustomerID:     req.CustomerID,
		Name:           req.Delivery.Name,
		Phone:          req.Delivery.Phone,
		Address:        req.Delivery.Address,
		DeliveryPlace:  place,
		Area:           req.Delivery.Area,
		DeliveryDate:   date,
		DeliverySlot:   req.Delivery.DeliverySlot,
		Items:          items,
		TotalAmount:    total,
		PaymentMode:    models.PaymentCOD,
		OrderType:      orderType,
		SubscriptionID: req.SubscriptionID,
		Status:         status,
		AgreedToTerms:  req.AgreedToTerms,
		IsManual:       req.IsManual,
		CreatedAt:      now,
	}
}

// snapshotItem prices a line from the product read in the transaction.
func (o *Orchestrator) snapshotItem(l models.CartLine, p *models.Product) models.OrderItem {
	item := models.OrderItem{
		ProductID:    p.ID,
		Name:         p.Name,
		Unit:         p.Unit,
		Quantity:     l.Quantity,
		PriceAtOrder: p.PricePerUnit,
		IsCut:        l.IsCut,
	}
	if p.Model() != models.StockSimple && l.VariantID != "" {
		if v, ok := p.Variant(l.VariantID); ok {
			item.VariantID = v.ID
			item.Unit = v.Unit
			item.PriceAtOrder = v.Price
		}
	}
	if l.IsCut {
		item.CutCharge = p.CutCharge
		if item.CutCharge == 0 {
			item.CutCharge = o.defaultCutCharge
		}
	}
	return item
}
