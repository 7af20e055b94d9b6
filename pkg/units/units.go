// Package units converts variant package sizes such as "500g" into an
// amount of a product's base unit.
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind groups units that can be converted into each other.
type Kind int

const (
	KindUnknown Kind = iota
	KindWeight
	KindVolume
	KindCount
)

func (k Kind) String() string {
	switch k {
	case KindWeight:
		return "weight"
	case KindVolume:
		return "volume"
	case KindCount:
		return "count"
	default:
		return "unknown"
	}
}

// Canonical unit labels.
const (
	Kilogram   = "Kg"
	Gram       = "Grms"
	Litre      = "Ltr"
	Millilitre = "ML"
	Piece      = "Pcs"
	Packet     = "Pkts"
)

// ErrUnresolvable is returned when a variant unit cannot be expressed in
// the base unit.
var ErrUnresolvable = errors.New("unresolvable unit")

var aliases = map[string]string{
	"kg": Kilogram, "kgs": Kilogram,
	"g": Gram, "gm": Gram, "gms": Gram, "gram": Gram, "grams": Gram, "grms": Gram,
	"l": Litre, "ltr": Litre,
	"ml": Millilitre,
	"pc": Piece, "pcs": Piece,
	"pkt": Packet, "pkts": Packet,
}

var kinds = map[string]Kind{
	Kilogram: KindWeight, Gram: KindWeight,
	Litre: KindVolume, Millilitre: KindVolume,
	Piece: KindCount, Packet: KindCount,
}

var thousand = decimal.NewFromInt(1000)

// factors[from][to] multiplies an amount of from into to.
var factors = map[string]map[string]decimal.Decimal{
	Kilogram:   {Gram: thousand},
	Gram:       {Kilogram: decimal.NewFromInt(1).Div(thousand)},
	Litre:      {Millilitre: thousand},
	Millilitre: {Litre: decimal.NewFromInt(1).Div(thousand)},
}

var sizePattern = regexp.MustCompile(`^([\d.]+)\s*([a-zA-Z]+)$`)

// Size is a parsed package size like "500 Grms".
type Size struct {
	Value decimal.Decimal
	Unit  string
	Kind  Kind
}

// Standardize maps a free-form unit label onto its canonical spelling.
// Labels that are not recognised are returned unchanged.
func Standardize(label string) string {
	if label == "" {
		return ""
	}
	key := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(label))
	if std, ok := aliases[key]; ok {
		return std
	}
	return label
}

// KindOf reports the kind of a unit label.
func KindOf(label string) Kind {
	return kinds[Standardize(label)]
}

// ParseSize parses "500g", "0.5 kg" and similar. A label without a leading
// number yields a zero value and KindUnknown.
func ParseSize(s string) Size {
	clean := strings.TrimSpace(s)
	m := sizePattern.FindStringSubmatch(clean)
	if m == nil {
		return Size{Value: decimal.Zero, Unit: Standardize(clean), Kind: KindUnknown}
	}
	value, err := decimal.NewFromString(m[1])
	if err != nil {
		return Size{Value: decimal.Zero, Unit: Standardize(m[2]), Kind: KindUnknown}
	}
	unit := Standardize(m[2])
	return Size{Value: value, Unit: unit, Kind: kinds[unit]}
}

// Compatible reports whether two labels measure the same kind of thing.
func Compatible(a, b string) bool {
	ka, kb := KindOf(a), KindOf(b)
	return ka != KindUnknown && ka == kb
}

// Convert expresses value in from as an amount of to.
func Convert(value decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = Standardize(from), Standardize(to)
	if !Compatible(from, to) {
		return decimal.Zero, fmt.Errorf("%w: %q is not convertible to %q", ErrUnresolvable, from, to)
	}
	if from == to {
		return value, nil
	}
	f, ok := factors[from][to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no conversion from %q to %q", ErrUnresolvable, from, to)
	}
	return value.Mul(f), nil
}

// Multiplier returns how many base units one item of the variant consumes.
// A bare label equal to the base unit ("kg" against "Kg") counts as one.
func Multiplier(variantUnit, baseUnit string) (decimal.Decimal, error) {
	size := ParseSize(variantUnit)
	if size.Value.IsZero() {
		if Standardize(variantUnit) == Standardize(baseUnit) {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, fmt.Errorf("%w: variant %q has no size", ErrUnresolvable, variantUnit)
	}
	return Convert(size.Value, size.Unit, baseUnit)
}

// Deduction returns the base-unit amount consumed by qty items of the
// variant. It returns zero, never an error, when the pair cannot be
// resolved; callers must treat a zero result for a positive qty as unknown.
func Deduction(variantUnit, baseUnit string, qty decimal.Decimal) decimal.Decimal {
	m, err := Multiplier(variantUnit, baseUnit)
	if err != nil {
		return decimal.Zero
	}
	return m.Mul(qty)
}
