package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// GasCost is the network cost of one on-chain transaction.
type GasCost struct {
	GasLimit uint64
	GasPrice *big.Int // wei
	TotalWei *big.Int // gasLimit * gasPrice
	Native   decimal.Decimal
	Quote    decimal.Decimal // Native converted at the native asset's price
}

// NewGasCost converts gasLimit * gasPrice into native units and quote
// currency.
func NewGasCost(gasLimit uint64, gasPriceWei *big.Int, nativePrice decimal.Decimal) *GasCost {
	totalWei := new(big.Int).Mul(gasPriceWei, new(big.Int).SetUint64(gasLimit))
	native := decimal.NewFromBigInt(totalWei, -18)

	return &GasCost{
		GasLimit: gasLimit,
		GasPrice: gasPriceWei,
		TotalWei: totalWei,
		Native:   native,
		Quote:    native.Mul(nativePrice),
	}
}

// Costs are the execution cost components of a candidate.
type Costs struct {
	Fee         decimal.Decimal
	NetworkCost decimal.Decimal
}

func (c Costs) Total() decimal.Decimal { return c.Fee.Add(c.NetworkCost) }

// TakerFee is notional * feePct / 100.
func TakerFee(notional, feePct decimal.Decimal) decimal.Decimal {
	return notional.Mul(feePct).Div(hundred)
}
