// Package fees defines the injectable fee policy for transfers. No fixed rate
// is assumed; deployments choose a policy at wiring time.
package fees

import "github.com/shopspring/decimal"

// Policy computes the fee charged to the sender on top of the amount.
type Policy interface {
	Fee(amount decimal.Decimal) decimal.Decimal
}

// Free charges no fee.
type Free struct{}

func (Free) Fee(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// FlatPercent charges a percentage of the amount, rounded to 2 decimal places,
// floored at Min.
type FlatPercent struct {
	Percent decimal.Decimal
	Min     decimal.Decimal
}

func (p FlatPercent) Fee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(p.Percent).Div(decimal.NewFromInt(100)).Round(2)
	if fee.LessThan(p.Min) {
		return p.Min
	}
	return fee
}
