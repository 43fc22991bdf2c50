package estimate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Field names a user-editable cell of a row.
type Field string

const (
	FieldService     Field = "service"
	FieldDescription Field = "description"
	FieldDuration    Field = "duration"
	FieldUnit        Field = "unit"
	FieldQty         Field = "qty"
	FieldPriceEst    Field = "priceEst"
	FieldDiscount    Field = "discount"
	FieldFactor      Field = "factor"
	FieldCR          Field = "cr"
	FieldPriceAct    Field = "priceAct"
)

// RawFields lists the stored cells of a row in their persisted order.
var RawFields = []Field{
	FieldService,
	FieldDescription,
	FieldDuration,
	FieldUnit,
	FieldQty,
	FieldPriceEst,
	FieldDiscount,
	FieldFactor,
	FieldCR,
	FieldPriceAct,
}

// Valid reports whether f is one of the raw row fields.
func (f Field) Valid() bool {
	for _, rf := range RawFields {
		if f == rf {
			return true
		}
	}
	return false
}

// AffectsTotals reports whether editing f requires the row totals to be
// recalculated.
func (f Field) AffectsTotals() bool {
	switch f {
	case FieldQty, FieldPriceEst, FieldDiscount, FieldFactor, FieldCR, FieldPriceAct:
		return true
	}
	return false
}

// Row is one cost line of a section.
type Row struct {
	Service     Value `json:"service"`
	Description Value `json:"description"`
	Duration    Value `json:"duration"`
	Unit        Value `json:"unit"`
	Qty         Value `json:"qty"`
	PriceEst    Value `json:"priceEst"`
	Discount    Value `json:"discount"`
	Factor      Value `json:"factor"`
	CR          Value `json:"cr"`
	PriceAct    Value `json:"priceAct"`

	Providers []Provider `json:"providers"`

	TotalEst      int64 `json:"totalEst"`
	TotalAct      int64 `json:"totalAct"`
	Profitability int64 `json:"profitability"`
}

// NewRow returns an empty row. Multipliers start at "1".
func NewRow() Row {
	return Row{
		Discount:  "1",
		Factor:    "1",
		CR:        "1",
		Providers: []Provider{},
	}
}

// Get returns the raw value of f.
func (r *Row) Get(f Field) (Value, error) {
	p, err := r.cell(f)
	if err != nil {
		return "", err
	}
	return *p, nil
}

// Set replaces the raw value of f. It does not recalculate.
func (r *Row) Set(f Field, v Value) error {
	p, err := r.cell(f)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (r *Row) cell(f Field) (*Value, error) {
	switch f {
	case FieldService:
		return &r.Service, nil
	case FieldDescription:
		return &r.Description, nil
	case FieldDuration:
		return &r.Duration, nil
	case FieldUnit:
		return &r.Unit, nil
	case FieldQty:
		return &r.Qty, nil
	case FieldPriceEst:
		return &r.PriceEst, nil
	case FieldDiscount:
		return &r.Discount, nil
	case FieldFactor:
		return &r.Factor, nil
	case FieldCR:
		return &r.CR, nil
	case FieldPriceAct:
		return &r.PriceAct, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
}

// Recalculate refreshes TotalEst, TotalAct and Profitability from the raw
// cells.
func (r *Row) Recalculate() {
	r.TotalEst = EstimatedTotal(*r)
	r.TotalAct = ActualTotal(*r)
	r.Profitability = Profitability(r.TotalEst, r.TotalAct)
}

// EstimatedTotal is qty × priceEst.
func EstimatedTotal(r Row) int64 {
	return product(r.Qty.Int(), r.PriceEst.Int())
}

// ActualTotal is qty × discount × factor × cr × priceAct. A discount,
// factor or cr that is blank or parses to 0 counts as 1.
func ActualTotal(r Row) int64 {
	return product(
		r.Qty.Int(),
		multiplier(r.Discount),
		multiplier(r.Factor),
		multiplier(r.CR),
		r.PriceAct.Int(),
	)
}

func multiplier(v Value) int64 {
	if n := v.Int(); n != 0 {
		return n
	}
	return 1
}

var (
	hundred  = decimal.NewFromInt(100)
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// clamp saturates d at the int64 bounds. Totals, sums and differences all
// go through it or Add so they never wrap.
func clamp(d decimal.Decimal) int64 {
	switch {
	case d.GreaterThan(maxInt64):
		return math.MaxInt64
	case d.LessThan(minInt64):
		return math.MinInt64
	}
	return d.IntPart()
}

func product(factors ...int64) int64 {
	p := decimal.NewFromInt(1)
	for _, f := range factors {
		if f == 0 {
			return 0
		}
		p = p.Mul(decimal.NewFromInt(f))
	}
	return clamp(p)
}

// Add returns a+b saturated at the int64 bounds.
func Add(a, b int64) int64 {
	s := a + b
	switch {
	case a > 0 && b > 0 && s < 0:
		return math.MaxInt64
	case a < 0 && b < 0 && s >= 0:
		return math.MinInt64
	}
	return s
}

func sub(a, b int64) int64 {
	return clamp(decimal.NewFromInt(a).Sub(decimal.NewFromInt(b)))
}

// Profitability returns the signed margin of act against est as a whole
// percentage. With no estimate it is -100 when costs exist and 0 otherwise.
//
// Ties at .5 round away from zero: 12.5 becomes 13 and -12.5 becomes -13.
// The division is exact, so ties never depend on float representation.
func Profitability(est, act int64) int64 {
	switch {
	case est > 0:
		return clamp(decimal.NewFromInt(est).
			Sub(decimal.NewFromInt(act)).
			Mul(hundred).
			DivRound(decimal.NewFromInt(est), 0))
	case act > 0:
		return -100
	}
	return 0
}
