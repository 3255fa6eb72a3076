package model

import "github.com/shopspring/decimal"

// Market describes a tradeable instrument for simulation purposes.
type Market struct {
	Name string `json:"name"`

	// PipSize is the market's minimum meaningful price increment, e.g. 0.0001
	// for most FX pairs. Used for risk and profit figures expressed in pips.
	PipSize decimal.Decimal `json:"pip_size"`
}

// PriceToPips converts a price distance into pips. A zero pip size yields zero.
func (m Market) PriceToPips(distance decimal.Decimal) decimal.Decimal {
	if m.PipSize.IsZero() {
		return decimal.Zero
	}
	return distance.Div(m.PipSize)
}

// PipsToPrice converts a pip count into a price distance.
func (m Market) PipsToPrice(pips decimal.Decimal) decimal.Decimal {
	return pips.Mul(m.PipSize)
}
