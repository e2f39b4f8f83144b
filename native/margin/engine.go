package margin

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultAuctionLength is the liquidation auction duration in seconds.
const DefaultAuctionLength = 3600

// defaultDecimals applies to any asset without a registered native decimal
// count.
const defaultDecimals = 18

// engineState is the persistence boundary the engine operates against. The
// engine never caches across calls; every operation reads, computes, and
// writes only on success so a failure leaves no partial state behind.
type engineState interface {
	GetVault(owner common.Address, vaultID uint64) (*Vault, error)
	PutVault(owner common.Address, vaultID uint64, vault *Vault) error
	GetOption(option common.Address) (*OptionTerms, error)
	PutOption(option common.Address, terms *OptionTerms) error
	GetRiskCurve(product common.Hash) (*RiskCurve, error)
	PutRiskCurve(product common.Hash, curve *RiskCurve) error
	GetCollateralDust(asset common.Address) (*big.Int, error)
	PutCollateralDust(asset common.Address, amount *big.Int) error
	GetOracleDeviation() (*big.Int, error)
	PutOracleDeviation(value *big.Int) error
	GetAssetDecimals(asset common.Address) (uint8, bool, error)
	PutAssetDecimals(asset common.Address, decimals uint8) error
}

// PriceSource is the narrow read-only oracle contract consumed by the engine.
// Live prices are always usable by convention; expiry prices carry a
// finalization flag; round data ties a historical price to an oracle round
// for liquidation fairness. All prices are at 18 decimals.
type PriceSource interface {
	GetLivePrice(asset common.Address) (*big.Int, error)
	GetExpiryPrice(asset common.Address, expiry uint64) (*big.Int, bool, error)
	GetRoundData(asset common.Address, roundID uint64) (*big.Int, uint64, error)
}

// Engine computes collateral requirements, settlement values and liquidation
// economics for option vaults. It holds no value itself: the caller applies
// the transfer amounts it returns.
type Engine struct {
	state         engineState
	oracle        PriceSource
	timestamp     uint64
	auctionLength uint64
}

// NewEngine constructs an engine with the default auction duration. State,
// oracle and timestamp are wired by the caller before use.
func NewEngine() *Engine {
	return &Engine{auctionLength: DefaultAuctionLength}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetOracle wires the price source consulted for live, expiry and round
// prices.
func (e *Engine) SetOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetTimestamp records the current time used when computing durations and
// auction decay. The dispatcher stamps it once per invocation so a whole
// operation observes a single instant.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil {
		return
	}
	e.timestamp = ts
}

// SetAuctionLength overrides the liquidation auction duration. Zero restores
// the default.
func (e *Engine) SetAuctionLength(seconds uint64) {
	if e == nil {
		return
	}
	if seconds == 0 {
		seconds = DefaultAuctionLength
	}
	e.auctionLength = seconds
}

// RegisterOption records the immutable terms of an issued option. Terms are
// write-once: re-registering an address is rejected.
func (e *Engine) RegisterOption(option common.Address, terms *OptionTerms) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if terms == nil || terms.Strike == nil || terms.Strike.Sign() <= 0 {
		return ErrInvalidAmount
	}
	existing, err := e.state.GetOption(option)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrVaultExists
	}
	stored := *terms
	stored.Strike = new(big.Int).Set(terms.Strike)
	return e.state.PutOption(option, &stored)
}

// RegisterAssetDecimals records an asset whose native decimal count differs
// from the default of 18.
func (e *Engine) RegisterAssetDecimals(asset common.Address, decimals uint8) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.state.PutAssetDecimals(asset, decimals)
}

// OpenVault creates an empty vault for (owner, vaultID).
func (e *Engine) OpenVault(owner common.Address, vaultID uint64, kind VaultKind) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	existing, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrVaultExists
	}
	vault := &Vault{Kind: kind, LastUpdated: e.timestamp}
	return e.state.PutVault(owner, vaultID, vault)
}

// GetVault returns a copy of the stored vault.
func (e *Engine) GetVault(owner common.Address, vaultID uint64) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	vault, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrVaultNotFound
	}
	return vault.Clone(), nil
}

// MintShort adds short exposure to a vault and asserts the result solvent.
func (e *Engine) MintShort(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		terms, err := e.option(option)
		if err != nil {
			return err
		}
		if terms.Expiry <= e.timestamp {
			return ErrOptionExpired
		}
		return addEntry(&vault.ShortOptions, &vault.ShortAmounts, option, amount)
	})
}

// BurnShort removes short exposure from a vault.
func (e *Engine) BurnShort(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		return subEntry(&vault.ShortOptions, &vault.ShortAmounts, option, amount)
	})
}

// DepositLong adds a long option to a vault. Naked-margin vaults can not hold
// longs.
func (e *Engine) DepositLong(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		if vault.Kind == NakedMargin {
			return ErrLongNotPermitted
		}
		terms, err := e.option(option)
		if err != nil {
			return err
		}
		if terms.Expiry <= e.timestamp {
			return ErrOptionExpired
		}
		return addEntry(&vault.LongOptions, &vault.LongAmounts, option, amount)
	})
}

// WithdrawLong removes a long option from a vault.
func (e *Engine) WithdrawLong(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		return subEntry(&vault.LongOptions, &vault.LongAmounts, option, amount)
	})
}

// DepositCollateral adds collateral to a vault.
func (e *Engine) DepositCollateral(owner common.Address, vaultID uint64, asset common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		return addEntry(&vault.CollateralAssets, &vault.CollateralAmounts, asset, amount)
	})
}

// WithdrawCollateral removes collateral, asserting the vault stays solvent.
func (e *Engine) WithdrawCollateral(owner common.Address, vaultID uint64, asset common.Address, amount *big.Int) error {
	return e.mutateVault(owner, vaultID, func(vault *Vault) error {
		return subEntry(&vault.CollateralAssets, &vault.CollateralAmounts, asset, amount)
	})
}

// mutateVault loads, mutates and re-validates a vault, writing it back with a
// fresh LastUpdated stamp only when the final state is solvent.
func (e *Engine) mutateVault(owner common.Address, vaultID uint64, mutate func(*Vault) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	stored, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return err
	}
	if stored == nil {
		return ErrVaultNotFound
	}
	vault := stored.Clone()
	if err := mutate(vault); err != nil {
		return err
	}
	if err := e.checkFinalVaultState(vault); err != nil {
		return err
	}
	vault.LastUpdated = e.timestamp
	return e.state.PutVault(owner, vaultID, vault)
}

// checkFinalVaultState asserts a mutated vault may be persisted: the shape is
// structurally valid and the position is solvent under its collateralization
// regime.
func (e *Engine) checkFinalVaultState(vault *Vault) error {
	if err := validateVaultShape(vault); err != nil {
		return err
	}
	short, shortAmount, hasShort := entry(vault.ShortOptions, vault.ShortAmounts)
	if !hasShort || shortAmount.Sign() == 0 {
		return nil
	}
	terms, err := e.option(short)
	if err != nil {
		return err
	}
	if vault.Kind == NakedMargin {
		if len(vault.LongOptions) > 0 {
			return ErrLongNotPermitted
		}
		if terms.Expiry <= e.timestamp {
			return nil // settlement path takes over after expiry
		}
		required, err := e.nakedRequirementLive(vault, terms)
		if err != nil {
			return err
		}
		collateral := collateralAmount(vault)
		if collateral.Cmp(required) < 0 {
			return ErrInvalidFinalVaultState
		}
		return nil
	}
	_, isExcess, err := e.GetExcessCollateral(vault, terms.Collateral)
	if err != nil {
		return err
	}
	if !isExcess {
		return ErrInvalidFinalVaultState
	}
	return nil
}

// SyncVault refreshes the vault's last-update timestamp. It is an assertion,
// not a repair: the call fails when the vault is under-collateralized at the
// live price, leaving the stored vault untouched.
func (e *Engine) SyncVault(owner common.Address, vaultID uint64) error {
	return e.mutateVault(owner, vaultID, func(*Vault) error { return nil })
}

// SettleVault computes the post-expiry excess, empties the vault, and returns
// the amount owed to the owner in the collateral asset's native decimals. A
// deficit here means the dispatcher let an under-collateralized vault reach
// expiry, which is a logic-fatal condition.
func (e *Engine) SettleVault(owner common.Address, vaultID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	stored, err := e.state.GetVault(owner, vaultID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrVaultNotFound
	}
	vault := stored.Clone()
	if err := validateVaultShape(vault); err != nil {
		return nil, err
	}

	payout := collateralAmount(vault)
	short, _, hasShort := entry(vault.ShortOptions, vault.ShortAmounts)
	if hasShort {
		terms, err := e.option(short)
		if err != nil {
			return nil, err
		}
		if terms.Expiry > e.timestamp {
			return nil, ErrOptionNotExpired
		}
		net, isExcess, err := e.GetExcessCollateral(vault, terms.Collateral)
		if err != nil {
			return nil, err
		}
		if !isExcess {
			return nil, ErrInvalidFinalVaultState
		}
		payout = net
	} else if long, _, hasLong := entry(vault.LongOptions, vault.LongAmounts); hasLong {
		terms, err := e.option(long)
		if err != nil {
			return nil, err
		}
		if terms.Expiry > e.timestamp {
			return nil, ErrOptionNotExpired
		}
		net, _, err := e.GetExcessCollateral(vault, terms.Collateral)
		if err != nil {
			return nil, err
		}
		payout = net
	}

	settled := &Vault{Kind: vault.Kind, LastUpdated: e.timestamp}
	if err := e.state.PutVault(owner, vaultID, settled); err != nil {
		return nil, err
	}
	return payout, nil
}

// option loads registered option terms, failing loudly when absent.
func (e *Engine) option(addr common.Address) (*OptionTerms, error) {
	terms, err := e.state.GetOption(addr)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		return nil, ErrOptionNotFound
	}
	return terms, nil
}

// assetDecimals resolves an asset's native decimal count, defaulting to 18.
func (e *Engine) assetDecimals(asset common.Address) (uint8, error) {
	decimals, ok, err := e.state.GetAssetDecimals(asset)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultDecimals, nil
	}
	return decimals, nil
}

// validateVaultShape enforces the structural invariants of spec'd vaults in a
// fixed check order so callers observe deterministic errors.
func validateVaultShape(vault *Vault) error {
	if vault == nil {
		return ErrVaultNotFound
	}
	if len(vault.ShortOptions) > 1 {
		return ErrTooManyShorts
	}
	if len(vault.LongOptions) > 1 {
		return ErrTooManyLongs
	}
	if len(vault.CollateralAssets) > 1 {
		return ErrTooManyCollaterals
	}
	if len(vault.ShortOptions) != len(vault.ShortAmounts) {
		return ErrShortAmountMismatch
	}
	if len(vault.LongOptions) != len(vault.LongAmounts) {
		return ErrLongAmountMismatch
	}
	if len(vault.CollateralAssets) != len(vault.CollateralAmounts) {
		return ErrCollateralAmountMismatch
	}
	return nil
}

// entry unpacks the optional single entry of a parallel asset/amount pair.
func entry(assets []common.Address, amounts []*big.Int) (common.Address, *big.Int, bool) {
	if len(assets) == 0 || len(amounts) == 0 {
		return common.Address{}, nil, false
	}
	amount := amounts[0]
	if amount == nil {
		amount = big.NewInt(0)
	}
	return assets[0], amount, true
}

// collateralAmount returns the vault's posted collateral in native decimals,
// zero when none is posted.
func collateralAmount(vault *Vault) *big.Int {
	if _, amount, ok := entry(vault.CollateralAssets, vault.CollateralAmounts); ok {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

// addEntry credits amount to the single slot of a parallel pair, creating the
// slot on first use and rejecting a second distinct asset.
func addEntry(assets *[]common.Address, amounts *[]*big.Int, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if len(*assets) == 0 {
		*assets = []common.Address{asset}
		*amounts = []*big.Int{new(big.Int).Set(amount)}
		return nil
	}
	if (*assets)[0] != asset {
		return ErrAssetMismatch
	}
	(*amounts)[0] = new(big.Int).Add((*amounts)[0], amount)
	return nil
}

// subEntry debits amount from the single slot of a parallel pair, clearing
// the slot to zero length when the balance reaches exactly zero.
func subEntry(assets *[]common.Address, amounts *[]*big.Int, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if len(*assets) == 0 || (*assets)[0] != asset {
		return ErrAssetMismatch
	}
	balance := (*amounts)[0]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() == 0 {
		*assets = nil
		*amounts = nil
		return nil
	}
	(*amounts)[0] = remaining
	return nil
}
