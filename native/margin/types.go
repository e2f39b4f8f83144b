package margin

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// OptionType is the two-variant tag dispatched once at the top of every
// pricing formula.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

// OptionTerms captures the immutable parameters of an issued option. Terms
// are written once at issuance and referenced by the option's address from
// then on. Strike is carried at 18 decimals regardless of the underlying
// token's native decimal count.
type OptionTerms struct {
	Underlying  common.Address
	StrikeAsset common.Address
	Collateral  common.Address
	Strike      *big.Int
	Expiry      uint64
	Type        OptionType
}

// Product identifies a risk-curve configuration bucket: every option sharing
// an underlying, strike asset, collateral asset and type prices against the
// same curve.
type Product struct {
	Underlying  common.Address
	StrikeAsset common.Address
	Collateral  common.Address
	Type        OptionType
}

// Hash derives the storage key for the product's risk-curve record.
func (p Product) Hash() common.Hash {
	return crypto.Keccak256Hash(
		p.Underlying.Bytes(),
		p.StrikeAsset.Bytes(),
		p.Collateral.Bytes(),
		[]byte{byte(p.Type)},
	)
}

// product returns the risk-curve bucket an option prices against.
func (t *OptionTerms) product() Product {
	return Product{
		Underlying:  t.Underlying,
		StrikeAsset: t.StrikeAsset,
		Collateral:  t.Collateral,
		Type:        t.Type,
	}
}

// sameProduct reports whether two options share a risk bucket and expiry, the
// precondition for a long option crediting a short's requirement.
func (t *OptionTerms) sameProduct(o *OptionTerms) bool {
	if t == nil || o == nil {
		return false
	}
	return t.Underlying == o.Underlying &&
		t.StrikeAsset == o.StrikeAsset &&
		t.Collateral == o.Collateral &&
		t.Type == o.Type &&
		t.Expiry == o.Expiry
}

// VaultKind selects the collateralization regime a vault is held to.
type VaultKind uint8

const (
	// FullyCollateralized vaults must always cover the worst-case payout.
	FullyCollateralized VaultKind = iota
	// NakedMargin vaults are bounded by the product risk curve instead of
	// full notional and are subject to liquidation.
	NakedMargin
)

// Vault aggregates at most one short option, one long option and one
// collateral asset for a single (owner, vaultID) pair. The parallel
// asset/amount slices each have length zero or one; the valuation engine
// rejects anything else. Short and long amounts are carried at 18 decimals,
// collateral amounts in the collateral asset's native decimals.
type Vault struct {
	ShortOptions      []common.Address
	ShortAmounts      []*big.Int
	LongOptions       []common.Address
	LongAmounts       []*big.Int
	CollateralAssets  []common.Address
	CollateralAmounts []*big.Int
	Kind              VaultKind
	LastUpdated       uint64
}

// Clone returns a deep copy so engine mutations never alias stored state.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{
		Kind:        v.Kind,
		LastUpdated: v.LastUpdated,
	}
	clone.ShortOptions = append([]common.Address(nil), v.ShortOptions...)
	clone.LongOptions = append([]common.Address(nil), v.LongOptions...)
	clone.CollateralAssets = append([]common.Address(nil), v.CollateralAssets...)
	clone.ShortAmounts = cloneAmounts(v.ShortAmounts)
	clone.LongAmounts = cloneAmounts(v.LongAmounts)
	clone.CollateralAmounts = cloneAmounts(v.CollateralAmounts)
	return clone
}

func cloneAmounts(amounts []*big.Int) []*big.Int {
	if amounts == nil {
		return nil
	}
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		if a != nil {
			out[i] = new(big.Int).Set(a)
		} else {
			out[i] = big.NewInt(0)
		}
	}
	return out
}

// RiskCurve is the per-product configuration consulted by the naked-margin
// formula: a spot-shock ratio and an ordered (time-to-expiry, required-ratio)
// step set, both at 27 decimals. Durations are strictly increasing; lookups
// are exact-match only.
type RiskCurve struct {
	SpotShock     *big.Int
	TimesToExpiry []uint64
	Ratios        []*big.Int
}

// ratioFor performs the exact-duration lookup. The boolean reports whether
// the duration is configured with a usable ratio.
func (c *RiskCurve) ratioFor(duration uint64) (*big.Int, bool) {
	if c == nil {
		return nil, false
	}
	for i, t := range c.TimesToExpiry {
		if t == duration {
			if i >= len(c.Ratios) || c.Ratios[i] == nil || c.Ratios[i].Sign() <= 0 {
				return nil, false
			}
			return new(big.Int).Set(c.Ratios[i]), true
		}
	}
	return nil, false
}
