package margin

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Risk-curve configuration surface. All setters are operator-facing with
// overwrite semantics and take effect immediately; single-writer discipline
// is enforced by the caller, not here.

// SetSpotShock configures the spot-shock ratio (27 decimals) for a product.
func (e *Engine) SetSpotShock(p Product, ratio *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if ratio == nil || ratio.Sign() < 0 {
		return ErrInvalidRatio
	}
	curve, err := e.curveForWrite(p)
	if err != nil {
		return err
	}
	curve.SpotShock = new(big.Int).Set(ratio)
	return e.state.PutRiskCurve(p.Hash(), curve)
}

// SetProductTimeToExpiry registers a duration on the product's curve so
// exact-match lookups for it succeed once a ratio is assigned. Durations must
// be registered in strictly increasing order; the engine does not sort.
func (e *Engine) SetProductTimeToExpiry(p Product, duration uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	curve, err := e.curveForWrite(p)
	if err != nil {
		return err
	}
	for _, t := range curve.TimesToExpiry {
		if t == duration {
			return nil // already registered
		}
	}
	if n := len(curve.TimesToExpiry); n > 0 && curve.TimesToExpiry[n-1] >= duration {
		return ErrDurationOrder
	}
	curve.TimesToExpiry = append(curve.TimesToExpiry, duration)
	curve.Ratios = append(curve.Ratios, big.NewInt(0))
	return e.state.PutRiskCurve(p.Hash(), curve)
}

// SetTimeToExpiryValue assigns the required-collateral ratio (27 decimals)
// for a duration, registering the duration when it is new.
func (e *Engine) SetTimeToExpiryValue(p Product, duration uint64, ratio *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if ratio == nil || ratio.Sign() < 0 {
		return ErrInvalidRatio
	}
	curve, err := e.curveForWrite(p)
	if err != nil {
		return err
	}
	for i, t := range curve.TimesToExpiry {
		if t == duration {
			curve.Ratios[i] = new(big.Int).Set(ratio)
			return e.state.PutRiskCurve(p.Hash(), curve)
		}
	}
	if n := len(curve.TimesToExpiry); n > 0 && curve.TimesToExpiry[n-1] >= duration {
		return ErrDurationOrder
	}
	curve.TimesToExpiry = append(curve.TimesToExpiry, duration)
	curve.Ratios = append(curve.Ratios, new(big.Int).Set(ratio))
	return e.state.PutRiskCurve(p.Hash(), curve)
}

// SetCollateralDust configures the minimum collateral amount (native
// decimals) below which a position may not be left standing.
func (e *Engine) SetCollateralDust(asset common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return e.state.PutCollateralDust(asset, new(big.Int).Set(amount))
}

// SetOracleDeviation configures the global deviation ratio (27 decimals)
// subtracted from the intrinsic value when seeding the liquidation auction's
// starting price.
func (e *Engine) SetOracleDeviation(value *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if value == nil || value.Sign() < 0 {
		return ErrInvalidRatio
	}
	return e.state.PutOracleDeviation(new(big.Int).Set(value))
}

// SpotShock returns the configured spot-shock ratio for a product.
func (e *Engine) SpotShock(p Product) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	curve, err := e.state.GetRiskCurve(p.Hash())
	if err != nil {
		return nil, err
	}
	if curve == nil || curve.SpotShock == nil || curve.SpotShock.Sign() <= 0 {
		return nil, ErrRiskCurveNotConfigured
	}
	return new(big.Int).Set(curve.SpotShock), nil
}

// RequiredRatio performs the exact-duration lookup on the product's curve.
// There is no interpolation: a duration that was never registered fails.
func (e *Engine) RequiredRatio(p Product, duration uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	curve, err := e.state.GetRiskCurve(p.Hash())
	if err != nil {
		return nil, err
	}
	ratio, ok := curve.ratioFor(duration)
	if !ok {
		return nil, ErrRiskCurveNotConfigured
	}
	return ratio, nil
}

// CollateralDust returns the dust floor for an asset, zero when unset.
func (e *Engine) CollateralDust(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	dust, err := e.state.GetCollateralDust(asset)
	if err != nil {
		return nil, err
	}
	if dust == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(dust), nil
}

// OracleDeviation returns the configured deviation ratio, zero when unset.
func (e *Engine) OracleDeviation() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	value, err := e.state.GetOracleDeviation()
	if err != nil {
		return nil, err
	}
	if value == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(value), nil
}

func (e *Engine) curveForWrite(p Product) (*RiskCurve, error) {
	curve, err := e.state.GetRiskCurve(p.Hash())
	if err != nil {
		return nil, err
	}
	if curve == nil {
		curve = &RiskCurve{SpotShock: big.NewInt(0)}
	}
	return curve, nil
}
