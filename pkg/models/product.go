package models

import "time"

// StockModel selects how a product's inventory is accounted.
type StockModel string

const (
	StockSimple       StockModel = "SIMPLE"
	StockVariantCount StockModel = "VARIANT_COUNT"
	StockMasterWeight StockModel = "MASTER_WEIGHT"
)

type Variant struct {
	ID    string  `bson:"id" json:"id"`
	Unit  string  `bson:"unit" json:"unit"`
	Price float64 `bson:"price" json:"price"`
	Stock float64 `bson:"stock,omitempty" json:"stock,omitempty"`
}

type Product struct {
	ID            string     `bson:"_id" json:"id"`
	Name          string     `bson:"name" json:"name"`
	Unit          string     `bson:"unit" json:"unit"`
	PricePerUnit  float64    `bson:"pricePerUnit" json:"pricePerUnit"`
	CutCharge     float64    `bson:"cutCharge,omitempty" json:"cutCharge,omitempty"`
	StockModel    StockModel `bson:"stockModel,omitempty" json:"stockModel,omitempty"`
	StockQuantity float64    `bson:"stockQuantity" json:"stockQuantity"`
	Variants      []Variant  `bson:"variants,omitempty" json:"variants,omitempty"`
	Version       int64      `bson:"version" json:"version"`
	UpdatedAt     time.Time  `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Model returns the stock model, treating documents written before the
// field existed as SIMPLE.
func (p *Product) Model() StockModel {
	if p.StockModel == "" {
		return StockSimple
	}
	return p.StockModel
}

// Variant looks up a variant by id.
func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate stock without touching
// the snapshot they read.
func (p *Product) Clone() *Product {
	cp := *p
	if p.Variants != nil {
		cp.Variants = make([]Variant, len(p.Variants))
		copy(cp.Variants, p.Variants)
	}
	return &cp
}
