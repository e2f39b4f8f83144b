package margin

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/fixedpoint"
)

// GetNakedMarginRequired computes the collateral keeping an
// under-collateralized short solvent, in the collateral asset's native
// decimals. The spot price is shocked toward the short's loss direction
// (down for puts, up for calls), the exact remaining duration is looked up
// on the product curve, and the result is floored at the configured dust
// amount. The final rescale rounds up so the requirement is never
// understated.
func (e *Engine) GetNakedMarginRequired(p Product, shortAmount, strike, spotPrice *big.Int, expiry uint64, collateralDecimals uint8) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if expiry <= e.timestamp {
		return nil, ErrOptionExpired
	}
	if spotPrice == nil || spotPrice.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	duration := expiry - e.timestamp

	curve, err := e.state.GetRiskCurve(p.Hash())
	if err != nil {
		return nil, err
	}
	if curve == nil || curve.SpotShock == nil || curve.SpotShock.Sign() <= 0 {
		return nil, ErrRiskCurveNotConfigured
	}
	ratioRaw, ok := curve.ratioFor(duration)
	if !ok {
		return nil, ErrRiskCurveNotConfigured
	}

	ratio := fixedpoint.New(ratioRaw)
	shock := fixedpoint.New(curve.SpotShock)
	amount, err := fixedpoint.FromScaled(shortAmount, defaultDecimals)
	if err != nil {
		return nil, err
	}
	strikeFP, err := fixedpoint.FromScaled(strike, defaultDecimals)
	if err != nil {
		return nil, err
	}
	spot, err := fixedpoint.FromScaled(spotPrice, defaultDecimals)
	if err != nil {
		return nil, err
	}

	var margin fixedpoint.Value
	switch p.Type {
	case Put:
		// Strike-asset terms: full intrinsic beyond the shocked spot plus the
		// curve ratio on the remainder.
		shocked := shock.Mul(spot)
		inside := fixedpoint.Min(strikeFP, shocked)
		outside := fixedpoint.Max(strikeFP.Sub(shocked), fixedpoint.Zero())
		margin = ratio.Mul(inside).Add(outside).Mul(amount)
	default:
		// Underlying terms: mirror of the put with the spot shocked upward.
		shocked, err := spot.Div(shock)
		if err != nil {
			return nil, err
		}
		moneyness, err := strikeFP.Div(shocked)
		if err != nil {
			return nil, err
		}
		inside := fixedpoint.Min(fixedpoint.One(), moneyness)
		outside := fixedpoint.Max(fixedpoint.One().Sub(moneyness), fixedpoint.Zero())
		margin = ratio.Mul(inside).Add(outside).Mul(amount)
	}

	required, err := margin.ToScaled(collateralDecimals, true)
	if err != nil {
		return nil, err
	}
	dust, err := e.CollateralDust(p.Collateral)
	if err != nil {
		return nil, err
	}
	if required.Cmp(dust) < 0 {
		required = dust
	}
	return required, nil
}

// nakedRequirementLive computes the vault's current requirement at the live
// oracle price, used when asserting a mutated naked vault solvent.
func (e *Engine) nakedRequirementLive(vault *Vault, terms *OptionTerms) (*big.Int, error) {
	if e.oracle == nil {
		return nil, ErrNilOracle
	}
	_, shortAmount, _ := entry(vault.ShortOptions, vault.ShortAmounts)
	spot, err := e.oracle.GetLivePrice(terms.Underlying)
	if err != nil {
		return nil, err
	}
	decimals, err := e.assetDecimals(terms.Collateral)
	if err != nil {
		return nil, err
	}
	return e.GetNakedMarginRequired(terms.product(), shortAmount, terms.Strike, spot, terms.Expiry, decimals)
}

// liquidationState captures everything the auction needs once a vault has
// been judged against a price round.
type liquidationState struct {
	liquidatable  bool
	price         fixedpoint.Value // payout per option, collateral terms
	startingPrice fixedpoint.Value
	auctionEnded  bool
	decimals      uint8
	terms         *OptionTerms
	shortAmount   *big.Int
}

// IsLiquidatable judges a vault against a historical price round. It returns
// whether the vault is under-collateralized at the round price, the payout a
// liquidator would receive for repaying the full short amount now, and the
// auction's starting price per option, both in collateral native decimals.
// Solvent vaults report false with no error.
func (e *Engine) IsLiquidatable(owner common.Address, vaultID uint64, roundID uint64) (bool, *big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return false, nil, nil, ErrNilState
	}
	vault, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return false, nil, nil, err
	}
	if vault == nil {
		return false, nil, nil, ErrVaultNotFound
	}
	ls, err := e.liquidationPrice(vault, roundID)
	if err != nil {
		return false, nil, nil, err
	}
	if !ls.liquidatable {
		return false, nil, nil, nil
	}

	amount, err := fixedpoint.FromScaled(ls.shortAmount, defaultDecimals)
	if err != nil {
		return false, nil, nil, err
	}
	payout, err := ls.price.Mul(amount).ToScaled(ls.decimals, false)
	if err != nil {
		return false, nil, nil, err
	}
	collateral := collateralAmount(vault)
	if ls.auctionEnded || payout.Cmp(collateral) > 0 {
		payout = collateral
	}
	starting, err := ls.startingPrice.ToScaled(ls.decimals, false)
	if err != nil {
		return false, nil, nil, err
	}
	return true, payout, starting, nil
}

// Liquidate burns part or all of a vault's short position against a price
// round and returns the collateral seized. Fully liquidating at or past the
// auction end seizes the vault's entire collateral so the position closes to
// exactly zero.
func (e *Engine) Liquidate(owner common.Address, vaultID uint64, amount *big.Int, roundID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	stored, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrVaultNotFound
	}
	vault := stored.Clone()
	ls, err := e.liquidationPrice(vault, roundID)
	if err != nil {
		return nil, err
	}
	if !ls.liquidatable {
		return nil, ErrNotLiquidatable
	}
	if amount.Cmp(ls.shortAmount) > 0 {
		return nil, ErrInsufficientBalance
	}

	amountFP, err := fixedpoint.FromScaled(amount, defaultDecimals)
	if err != nil {
		return nil, err
	}
	seized, err := ls.price.Mul(amountFP).ToScaled(ls.decimals, false)
	if err != nil {
		return nil, err
	}
	collateral := collateralAmount(vault)
	full := amount.Cmp(ls.shortAmount) == 0
	if full && ls.auctionEnded {
		seized = new(big.Int).Set(collateral)
	}
	if seized.Cmp(collateral) > 0 {
		seized = new(big.Int).Set(collateral)
	}

	remainingShort := new(big.Int).Sub(ls.shortAmount, amount)
	remainingCollateral := new(big.Int).Sub(collateral, seized)
	if remainingShort.Sign() > 0 {
		dust, err := e.CollateralDust(ls.terms.Collateral)
		if err != nil {
			return nil, err
		}
		if remainingCollateral.Cmp(dust) < 0 {
			return nil, ErrCollateralDust
		}
		vault.ShortAmounts[0] = remainingShort
		if len(vault.CollateralAmounts) > 0 {
			vault.CollateralAmounts[0] = remainingCollateral
		}
	} else {
		vault.ShortOptions = nil
		vault.ShortAmounts = nil
		if remainingCollateral.Sign() == 0 {
			vault.CollateralAssets = nil
			vault.CollateralAmounts = nil
		} else {
			vault.CollateralAmounts[0] = remainingCollateral
		}
	}
	vault.LastUpdated = e.timestamp
	if err := e.state.PutVault(owner, vaultID, vault); err != nil {
		return nil, err
	}
	return seized, nil
}

// liquidationPrice judges the vault against the round price and, when it is
// under-collateralized, prices one option on the decaying auction: the
// starting price is the intrinsic value less the oracle deviation allowance,
// moving linearly to the vault's pro-rata collateral over the auction
// duration measured from the round timestamp.
func (e *Engine) liquidationPrice(vault *Vault, roundID uint64) (*liquidationState, error) {
	if e.oracle == nil {
		return nil, ErrNilOracle
	}
	if err := validateVaultShape(vault); err != nil {
		return nil, err
	}
	if vault.Kind != NakedMargin {
		return &liquidationState{}, nil
	}
	shortAddr, shortAmount, hasShort := entry(vault.ShortOptions, vault.ShortAmounts)
	if !hasShort || shortAmount.Sign() == 0 {
		return &liquidationState{}, nil
	}
	terms, err := e.option(shortAddr)
	if err != nil {
		return nil, err
	}
	if terms.Expiry <= e.timestamp {
		return nil, ErrOptionExpired
	}

	roundPrice, roundTimestamp, err := e.oracle.GetRoundData(terms.Underlying, roundID)
	if err != nil {
		return nil, err
	}
	if vault.LastUpdated >= roundTimestamp {
		return nil, ErrAuctionTimestampBeforeUpdate
	}

	decimals, err := e.assetDecimals(terms.Collateral)
	if err != nil {
		return nil, err
	}
	required, err := e.GetNakedMarginRequired(terms.product(), shortAmount, terms.Strike, roundPrice, terms.Expiry, decimals)
	if err != nil {
		return nil, err
	}
	collateral := collateralAmount(vault)
	if collateral.Cmp(required) >= 0 {
		return &liquidationState{}, nil
	}

	spot, err := fixedpoint.FromScaled(roundPrice, defaultDecimals)
	if err != nil {
		return nil, err
	}
	strike, err := fixedpoint.FromScaled(terms.Strike, defaultDecimals)
	if err != nil {
		return nil, err
	}
	deviationRaw, err := e.OracleDeviation()
	if err != nil {
		return nil, err
	}
	deviation := fixedpoint.New(deviationRaw)

	// Auction starting price per option, in collateral terms.
	var starting fixedpoint.Value
	switch terms.Type {
	case Put:
		intrinsic := fixedpoint.Max(strike.Sub(spot), fixedpoint.Zero())
		starting = fixedpoint.Max(intrinsic.Sub(deviation.Mul(spot)), fixedpoint.Zero())
	default:
		intrinsic := fixedpoint.Max(spot.Sub(strike), fixedpoint.Zero())
		starting, err = fixedpoint.Max(intrinsic.Sub(deviation.Mul(spot)), fixedpoint.Zero()).Div(spot)
		if err != nil {
			return nil, err
		}
	}

	collateralFP, err := fixedpoint.FromScaled(collateral, decimals)
	if err != nil {
		return nil, err
	}
	shortFP, err := fixedpoint.FromScaled(shortAmount, defaultDecimals)
	if err != nil {
		return nil, err
	}
	ending, err := collateralFP.Div(shortFP)
	if err != nil {
		return nil, err
	}

	var elapsed uint64
	if e.timestamp > roundTimestamp {
		elapsed = e.timestamp - roundTimestamp
	}
	price := ending
	ended := elapsed >= e.auctionLength
	if !ended {
		progress, err := fixedpoint.FromInt(int64(elapsed)).Div(fixedpoint.FromInt(int64(e.auctionLength)))
		if err != nil {
			return nil, err
		}
		price = starting.Add(ending.Sub(starting).Mul(progress))
	}

	return &liquidationState{
		liquidatable:  true,
		price:         price,
		startingPrice: starting,
		auctionEnded:  ended,
		decimals:      decimals,
		terms:         terms,
		shortAmount:   new(big.Int).Set(shortAmount),
	}, nil
}
