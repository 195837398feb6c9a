/*

This file contains the Kelly position sizer. Sizing is a pure synchronous
computation from the certified candidate's trade statistics, the account
balance and the current drawdown: full Kelly from the win rate and payoff
ratio, halved, discounted multiplicatively per 10-point drawdown band,
floored at the venue minimum order and capped last at the risk ceiling,
so no input sizes past the configured account risk. Order notionals are
fixed-precision decimals end to end.

*/

package sizing

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/types"
	"github.com/stratforge/optimizer/internal/utils"
)

const (
	// kellyHalving applies the standard half-Kelly safety margin.
	kellyHalving = 0.5
	// riskCapFraction bounds the applied fraction regardless of edge.
	riskCapFraction = 0.05
	// drawdownBandWidth and drawdownBandDiscount implement the 20%
	// multiplicative cut per full 10-point drawdown band.
	drawdownBandWidth    = 0.10
	drawdownBandDiscount = 0.80
	// smallBalanceThreshold switches the sizer to the fixed
	// minimum-order base instead of Kelly sizing.
	smallBalanceThreshold = 1000.0
	minOrderNotional      = "20"
)

var (
	ErrBalanceInvalid  = errors.New("balance must be positive and finite")
	ErrDrawdownInvalid = errors.New("drawdown must be in [0, 1)")
	ErrNoTradeHistory  = errors.New("trade statistics have no trades")
)

// Inputs is everything a sizing query needs. Stats must come from the
// certified parameter set's full-data evaluation.
type Inputs struct {
	Balance         float64         // account balance, quote units
	CurrentDrawdown float64         // fraction of equity below the peak, [0, 1)
	Stats           types.TradeStats
}

// Decide computes the position size for one prospective trade. It has no
// side effects and is safe to recompute on every signal.
func Decide(in Inputs) (types.PositionSizeDecision, error) {
	log := logger.GetForComponent("sizing")
	d := types.PositionSizeDecision{Binding: types.ConstraintNone, Notional: "0"}

	if in.Balance <= 0 {
		return d, fmt.Errorf("%w: %v", ErrBalanceInvalid, in.Balance)
	}
	if in.CurrentDrawdown < 0 || in.CurrentDrawdown >= 1 {
		return d, fmt.Errorf("%w: %v", ErrDrawdownInvalid, in.CurrentDrawdown)
	}
	if in.Stats.Trades == 0 {
		return d, ErrNoTradeHistory
	}

	d.KellyFraction = KellyFraction(in.Stats.WinRate, in.Stats.PayoffRatio())
	d.DrawdownDiscount = DrawdownDiscount(in.CurrentDrawdown)

	// No positive edge means no position; the floor never forces a trade.
	if d.KellyFraction <= 0 {
		return d, nil
	}

	applied := d.KellyFraction * kellyHalving * d.DrawdownDiscount

	balance, err := utils.Float64ToDec(in.Balance)
	if err != nil {
		return d, err
	}
	floor := sdkmath.LegacyMustNewDecFromStr(minOrderNotional)

	var notional sdkmath.LegacyDec
	if in.Balance < smallBalanceThreshold {
		// Small accounts skip Kelly sizing and start from the venue
		// minimum order.
		notional = floor
		d.Binding = types.ConstraintMinOrderFloor
	} else {
		fraction, err := utils.Float64ToDec(applied)
		if err != nil {
			return d, err
		}
		notional = balance.Mul(fraction)
		if notional.LT(floor) {
			notional = floor
			d.Binding = types.ConstraintMinOrderFloor
		}
	}

	// The hard risk ceiling binds last: whatever the floor produced, the
	// final order never risks more than the cap fraction of the account.
	capFraction, err := utils.Float64ToDec(riskCapFraction)
	if err != nil {
		return d, err
	}
	riskCap := balance.Mul(capFraction)
	if notional.GT(riskCap) {
		notional = riskCap
		d.Binding = types.ConstraintRiskCap
	}

	if f, err := utils.DecToFloat64(notional.Quo(balance)); err == nil {
		d.AppliedFraction = f
	}
	d.Notional = notional.String()
	log.Debug().
		Float64("kelly", d.KellyFraction).
		Float64("applied", d.AppliedFraction).
		Float64("discount", d.DrawdownDiscount).
		Str("notional", d.Notional).
		Str("binding", string(d.Binding)).
		Msg("Position size computed")
	return d, nil
}

// KellyFraction is the full Kelly f* = (b*p - q) / b for win rate p,
// loss rate q and payoff ratio b. Degenerate inputs (no losses observed,
// zero payoff) return 0 rather than a fraction built on one-sided data.
func KellyFraction(winRate, payoffRatio float64) float64 {
	if payoffRatio <= 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}
	f := (payoffRatio*winRate - (1 - winRate)) / payoffRatio
	if f < 0 {
		return 0
	}
	return f
}

// DrawdownDiscount multiplies the size down 20% for every completed
// 10-point drawdown band: 1.0 under 10%, 0.8 from 10%, 0.64 from 20%,
// and so on.
func DrawdownDiscount(drawdown float64) float64 {
	discount := 1.0
	for band := drawdownBandWidth; drawdown >= band; band += drawdownBandWidth {
		discount *= drawdownBandDiscount
	}
	return discount
}
