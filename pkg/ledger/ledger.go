// Package ledger checks and deducts inventory for a single product under
// its stock model.
package ledger

import (
	"fmt"

	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/units"
	"github.com/shopspring/decimal"
)

// SkippedLine is a master-weight line whose unit could not be resolved
// against the product's base unit. It was not deducted.
type SkippedLine struct {
	VariantID   string
	VariantUnit string
	Quantity    float64
}

// Result holds the updated working copy of a product.
type Result struct {
	Product *models.Product
	Skipped []SkippedLine
}

// account is implemented once per stock model.
type account interface {
	deduct(lines []models.CartLine) ([]SkippedLine, error)
}

// Apply deducts the merged demand of lines from a copy of p. The snapshot
// itself is never modified. Either every line is satisfied or an error is
// returned and the copy is discarded.
func Apply(p *models.Product, lines []models.CartLine) (*Result, error) {
	working := p.Clone()
	acc, err := accountFor(working)
	if err != nil {
		return nil, err
	}
	skipped, err := acc.deduct(lines)
	if err != nil {
		return nil, err
	}
	return &Result{Product: working, Skipped: skipped}, nil
}

func accountFor(p *models.Product) (account, error) {
	switch p.Model() {
	case models.StockSimple:
		return &simpleAccount{p: p}, nil
	case models.StockVariantCount:
		return &variantAccount{p: p}, nil
	case models.StockMasterWeight:
		return &masterAccount{p: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q on product %s", ErrUnsupportedStockModel, p.StockModel, p.ID)
	}
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type simpleAccount struct {
	p *models.Product
}

func (a *simpleAccount) deduct(lines []models.CartLine) ([]SkippedLine, error) {
	required := decimal.Zero
	for _, l := range lines {
		required = required.Add(dec(l.Quantity))
	}
	stock := dec(a.p.StockQuantity)
	if stock.LessThan(required) {
		return nil, &StockError{
			Kind:        ErrInsufficientStock,
			ProductID:   a.p.ID,
			ProductName: a.p.Name,
			Requested:   required.InexactFloat64(),
			Available:   a.p.StockQuantity,
		}
	}
	a.p.StockQuantity = stock.Sub(required).InexactFloat64()
	return nil, nil
}

type variantAccount struct {
	p *models.Product
}

func (a *variantAccount) deduct(lines []models.CartLine) ([]SkippedLine, error) {
	order := make([]string, 0, len(lines))
	required := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		if _, seen := required[l.VariantID]; !seen {
			order = append(order, l.VariantID)
			required[l.VariantID] = decimal.Zero
		}
		required[l.VariantID] = required[l.VariantID].Add(dec(l.Quantity))
	}

	// Validate everything before touching the working copy.
	for _, id := range order {
		v, ok := a.p.Variant(id)
		if id == "" || !ok {
			return nil, &StockError{
				Kind:        ErrVariantUnavailable,
				ProductID:   a.p.ID,
				ProductName: a.p.Name,
				VariantID:   id,
			}
		}
		if dec(v.Stock).LessThan(required[id]) {
			return nil, &StockError{
				Kind:        ErrInsufficientStock,
				ProductID:   a.p.ID,
				ProductName: a.p.Name,
				VariantID:   id,
				VariantUnit: v.Unit,
				Requested:   required[id].InexactFloat64(),
				Available:   v.Stock,
			}
		}
	}
	for _, id := range order {
		v, _ := a.p.Variant(id)
		v.Stock = dec(v.Stock).Sub(required[id]).InexactFloat64()
	}
	return nil, nil
}

type masterAccount struct {
	p *models.Product
}

func (a *masterAccount) deduct(lines []models.CartLine) ([]SkippedLine, error) {
	var skipped []SkippedLine
	total := decimal.Zero
	for _, l := range lines {
		qty := dec(l.Quantity)
		if l.VariantID == "" {
			// Loose quantity already expressed in the base unit.
			total = total.Add(qty)
			continue
		}
		v, ok := a.p.Variant(l.VariantID)
		if !ok {
			return nil, &StockError{
				Kind:        ErrVariantUnavailable,
				ProductID:   a.p.ID,
				ProductName: a.p.Name,
				VariantID:   l.VariantID,
			}
		}
		amount := units.Deduction(v.Unit, a.p.Unit, qty)
		if amount.IsZero() && qty.IsPositive() {
			skipped = append(skipped, SkippedLine{VariantID: v.ID, VariantUnit: v.Unit, Quantity: l.Quantity})
			continue
		}
		total = total.Add(amount)
	}

	stock := dec(a.p.StockQuantity)
	if stock.LessThan(total) {
		return nil, &StockError{
			Kind:        ErrInsufficientStock,
			ProductID:   a.p.ID,
			ProductName: a.p.Name,
			Requested:   total.InexactFloat64(),
			Available:   a.p.StockQuantity,
		}
	}
	a.p.StockQuantity = stock.Sub(total).InexactFloat64()
	return skipped, nil
}

// ValidateProduct rejects catalog documents the ledger could not account
// for correctly: negative stock, missing variants, and master-weight variants
// whose unit cannot be resolved against the base unit.
func ValidateProduct(p *models.Product) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProduct)
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("%w: %s has negative stock", ErrInvalidProduct, p.ID)
	}
	switch p.Model() {
	case models.StockSimple:
	case models.StockVariantCount:
		if len(p.Variants) == 0 {
			return fmt.Errorf("%w: %s has no variants", ErrInvalidProduct, p.ID)
		}
		for _, v := range p.Variants {
			if v.Stock < 0 {
				return fmt.Errorf("%w: variant %s of %s has negative stock", ErrInvalidProduct, v.ID, p.ID)
			}
		}
	case models.StockMasterWeight:
		if len(p.Variants) == 0 {
			return fmt.Errorf("%w: %s has no variants", ErrInvalidProduct, p.ID)
		}
		for _, v := range p.Variants {
			if _, err := units.Multiplier(v.Unit, p.Unit); err != nil {
				return fmt.Errorf("%w: variant %s of %s: %w", ErrInvalidProduct, v.ID, p.ID, err)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStockModel, p.StockModel)
	}
	seen := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if v.ID == "" {
			return fmt.Errorf("%w: %s has a variant without id", ErrInvalidProduct, p.ID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: %s has duplicate variant %s", ErrInvalidProduct, p.ID, v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	return nil
}
