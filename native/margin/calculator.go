package margin

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/fixedpoint"
)

// GetExcessCollateral values a structurally valid vault against the chosen
// denomination asset. The returned amount is in the denomination asset's
// native decimals; the boolean reports whether it is withdrawable excess
// (true) or a deficit that must still be posted (false). Excess is rounded
// down and deficits up, so rounding never favors the short seller.
func (e *Engine) GetExcessCollateral(vault *Vault, denomination common.Address) (*big.Int, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	if err := validateVaultShape(vault); err != nil {
		return nil, false, err
	}

	shortAddr, shortAmount, hasShort := entry(vault.ShortOptions, vault.ShortAmounts)
	if !hasShort {
		return collateralAmount(vault), true, nil
	}

	short, err := e.option(shortAddr)
	if err != nil {
		return nil, false, err
	}
	if denomination != short.Collateral {
		return nil, false, ErrDenominationMismatch
	}
	decimals, err := e.assetDecimals(denomination)
	if err != nil {
		return nil, false, err
	}

	collateral, err := fixedpoint.FromScaled(collateralAmount(vault), decimals)
	if err != nil {
		return nil, false, err
	}
	shortAmt, err := fixedpoint.FromScaled(shortAmount, defaultDecimals)
	if err != nil {
		return nil, false, err
	}

	var long *OptionTerms
	var longAmt fixedpoint.Value
	if longAddr, longAmount, hasLong := entry(vault.LongOptions, vault.LongAmounts); hasLong {
		long, err = e.option(longAddr)
		if err != nil {
			return nil, false, err
		}
		longAmt, err = fixedpoint.FromScaled(longAmount, defaultDecimals)
		if err != nil {
			return nil, false, err
		}
	}

	var net fixedpoint.Value
	if short.Expiry > e.timestamp {
		net, err = e.preExpiryNetValue(short, shortAmt, long, longAmt, collateral)
	} else {
		net, err = e.postExpiryNetValue(short, shortAmt, long, longAmt, collateral)
	}
	if err != nil {
		return nil, false, err
	}

	isExcess := net.Sign() >= 0
	amount, err := net.Abs().ToScaled(decimals, !isExcess)
	if err != nil {
		return nil, false, err
	}
	return amount, isExcess, nil
}

// preExpiryNetValue computes collateral minus the live margin requirement. A
// long option of the same product and expiry credits the requirement: the
// covered portion of the short only needs the spread width, anything beyond
// the long amount needs full collateral.
func (e *Engine) preExpiryNetValue(short *OptionTerms, shortAmt fixedpoint.Value, long *OptionTerms, longAmt fixedpoint.Value, collateral fixedpoint.Value) (fixedpoint.Value, error) {
	strike, err := fixedpoint.FromScaled(short.Strike, defaultDecimals)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	var longStrike fixedpoint.Value
	hasLong := long != nil && short.sameProduct(long)
	if hasLong {
		longStrike, err = fixedpoint.FromScaled(long.Strike, defaultDecimals)
		if err != nil {
			return fixedpoint.Value{}, err
		}
	}

	var required fixedpoint.Value
	switch short.Type {
	case Put:
		// Requirement in strike-asset terms. The credit from the long leg is
		// signed: a higher-strike long can push the requirement negative,
		// which surfaces as extra excess.
		required = strike.Mul(shortAmt)
		if hasLong {
			required = required.Sub(longStrike.Mul(fixedpoint.Min(shortAmt, longAmt)))
		}
	case Call:
		// Requirement in underlying terms. Uncovered short amount needs full
		// collateral; the covered portion needs the spread width over the
		// long strike, floored at zero.
		if !hasLong || longStrike.IsZero() {
			required = shortAmt
			break
		}
		uncovered := fixedpoint.Max(shortAmt.Sub(longAmt), fixedpoint.Zero())
		spread, err := longStrike.Sub(strike).Mul(shortAmt).Div(longStrike)
		if err != nil {
			return fixedpoint.Value{}, err
		}
		required = fixedpoint.Max(spread, fixedpoint.Zero()).Add(uncovered)
	}
	return collateral.Sub(required), nil
}

// postExpiryNetValue computes collateral minus the payout owed on the short
// plus the payout owned on the long, both at finalized expiry prices.
func (e *Engine) postExpiryNetValue(short *OptionTerms, shortAmt fixedpoint.Value, long *OptionTerms, longAmt fixedpoint.Value, collateral fixedpoint.Value) (fixedpoint.Value, error) {
	shortCash, err := e.expiredCashValue(short)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	net := collateral.Sub(shortCash.Mul(shortAmt))
	if long != nil {
		longCash, err := e.expiredCashValue(long)
		if err != nil {
			return fixedpoint.Value{}, err
		}
		net = net.Add(longCash.Mul(longAmt))
	}
	return net, nil
}

// expiredCashValue returns the option's settlement value per unit, expressed
// in its collateral asset terms: strike-asset terms for puts, underlying
// terms for calls (intrinsic value divided by the expiry price). It fails
// until the oracle has finalized the expiry price.
func (e *Engine) expiredCashValue(terms *OptionTerms) (fixedpoint.Value, error) {
	if e.oracle == nil {
		return fixedpoint.Value{}, ErrNilOracle
	}
	price, finalized, err := e.oracle.GetExpiryPrice(terms.Underlying, terms.Expiry)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if !finalized {
		return fixedpoint.Value{}, ErrPriceNotFinalized
	}
	expiryPrice, err := fixedpoint.FromScaled(price, defaultDecimals)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	strike, err := fixedpoint.FromScaled(terms.Strike, defaultDecimals)
	if err != nil {
		return fixedpoint.Value{}, err
	}

	switch terms.Type {
	case Put:
		return fixedpoint.Max(strike.Sub(expiryPrice), fixedpoint.Zero()), nil
	default:
		intrinsic := fixedpoint.Max(expiryPrice.Sub(strike), fixedpoint.Zero())
		if intrinsic.IsZero() {
			return fixedpoint.Zero(), nil
		}
		return intrinsic.Div(expiryPrice)
	}
}

// GetExpiredPayoutRate returns the settlement payout per whole option in the
// collateral asset's native decimals, rounded down. Redeem flows multiply it
// by the redeemed amount.
func (e *Engine) GetExpiredPayoutRate(option common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	terms, err := e.option(option)
	if err != nil {
		return nil, err
	}
	if terms.Expiry > e.timestamp {
		return nil, ErrOptionNotExpired
	}
	cash, err := e.expiredCashValue(terms)
	if err != nil {
		return nil, err
	}
	decimals, err := e.assetDecimals(terms.Collateral)
	if err != nil {
		return nil, err
	}
	return cash.ToScaled(decimals, false)
}
