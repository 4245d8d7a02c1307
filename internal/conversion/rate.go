package conversion

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// nativeDecimals is the precision of the native asset (wei).
const nativeDecimals = 18

// Rate is the amount of native token paid per karma point.
var Rate = decimal.RequireFromString("0.000000001")

// PointsToValue converts points to native units. The result is exact down to one wei.
func PointsToValue(points uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(points), 0).Mul(Rate).Truncate(nativeDecimals)
}

// ValueToPoints returns the smallest number of points worth at least value.
func ValueToPoints(value decimal.Decimal) uint64 {
	if !value.IsPositive() {
		return 0
	}
	return value.Div(Rate).Ceil().BigInt().Uint64()
}
