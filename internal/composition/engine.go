// Package composition derives per-component yarn requirements from a greige
// type recipe. All functions are pure; callers persist the results.
package composition

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTotal indicates recipe percentages do not sum to exactly 100.00.
	ErrInvalidTotal = errors.New("composition: percentages must total 100.00")
	// ErrMissingType indicates a component without a yarn type reference.
	ErrMissingType = errors.New("composition: component yarn type required")
	// ErrNonPositivePct indicates a component percentage <= 0.
	ErrNonPositivePct = errors.New("composition: component percentage must be > 0")
)

var hundred = decimal.NewFromInt(100)

// Component is one entry of a greige type recipe.
type Component struct {
	YarnTypeID int64
	Pct        decimal.Decimal
}

// Recipe is the ordered component list owned by one greige type.
type Recipe struct {
	GreigeTypeID int64
	Components   []Component
}

// Allocation is the derived requirement of one component for a batch.
// RequiredQty is never user-entered.
type Allocation struct {
	YarnTypeID  int64
	RequiredQty decimal.Decimal
}

// RequiredQuantity computes batchQty*pct/100 rounded half-up to three
// decimals. A non-positive batch quantity yields 0.000 by definition.
func RequiredQuantity(batchQty, pct decimal.Decimal) decimal.Decimal {
	if batchQty.Sign() <= 0 {
		return decimal.Zero.Round(3)
	}
	return batchQty.Mul(pct).Div(hundred).Round(3)
}

// Allocate derives required quantities for every component of the recipe,
// preserving component order. An empty recipe yields no allocations.
func Allocate(r Recipe, batchQty decimal.Decimal) []Allocation {
	if len(r.Components) == 0 {
		return nil
	}
	allocs := make([]Allocation, 0, len(r.Components))
	for _, c := range r.Components {
		allocs = append(allocs, Allocation{
			YarnTypeID:  c.YarnTypeID,
			RequiredQty: RequiredQuantity(batchQty, c.Pct),
		})
	}
	return allocs
}

// ValidateTotal checks the 100% invariant before a recipe is persisted.
// The sum is rounded to two decimals and compared for exact equality;
// there is deliberately no tolerance band.
func ValidateTotal(components []Component) error {
	sum := decimal.Zero
	for _, c := range components {
		sum = sum.Add(c.Pct)
	}
	if !sum.Round(2).Equal(hundred) {
		return ErrInvalidTotal
	}
	return nil
}

// ValidateComponent checks a single recipe row.
func ValidateComponent(c Component) error {
	if c.YarnTypeID == 0 {
		return ErrMissingType
	}
	if c.Pct.Sign() <= 0 {
		return ErrNonPositivePct
	}
	return nil
}

// ValidateRecipe runs per-component checks and the total invariant.
func ValidateRecipe(r Recipe) error {
	for _, c := range r.Components {
		if err := ValidateComponent(c); err != nil {
			return err
		}
	}
	return ValidateTotal(r.Components)
}
