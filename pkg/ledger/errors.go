package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound       = errors.New("product not found")
	ErrVariantUnavailable    = errors.New("variant unavailable")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrUnsupportedStockModel = errors.New("unsupported stock model")
	ErrInvalidProduct        = errors.New("invalid product")
)

// StockError describes why a product cannot satisfy a checkout. Kind is one
// of ErrProductNotFound, ErrVariantUnavailable or ErrInsufficientStock.
type StockError struct {
	Kind        error
	ProductID   string
	ProductName string
	VariantID   string
	VariantUnit string
	Requested   float64
	Available   float64
}

func (e *StockError) Error() string {
	item := e.Item()
	switch {
	case errors.Is(e.Kind, ErrInsufficientStock):
		return fmt.Sprintf("%s for %s: requested %g, available %g", e.Kind, item, e.Requested, e.Available)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, item)
	}
}

func (e *StockError) Unwrap() error {
	return e.Kind
}

// Item is the display name of the offending product or variant.
func (e *StockError) Item() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	switch {
	case e.VariantUnit != "":
		return fmt.Sprintf("%s (%s)", name, e.VariantUnit)
	case e.VariantID != "":
		return fmt.Sprintf("%s (%s)", name, e.VariantID)
	default:
		return name
	}
}
