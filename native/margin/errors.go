package margin

import "errors"

// Every failure below aborts the enclosing operation with no partial state
// change. None of them are retryable from inside the engine: structural and
// arithmetic errors are caller bugs, configuration errors are deployment
// defects, and price errors clear only once the oracle finalizes.
var (
	// Structural vault-shape violations, checked in the order listed.
	ErrTooManyShorts            = errors.New("margin engine: too many short options in the vault")
	ErrTooManyLongs             = errors.New("margin engine: too many long options in the vault")
	ErrTooManyCollaterals       = errors.New("margin engine: too many collateral assets in the vault")
	ErrShortAmountMismatch      = errors.New("margin engine: short asset and amount mismatch")
	ErrLongAmountMismatch       = errors.New("margin engine: long asset and amount mismatch")
	ErrCollateralAmountMismatch = errors.New("margin engine: collateral asset and amount mismatch")
	ErrDenominationMismatch     = errors.New("margin engine: denominated asset must be the short option collateral")

	// Price failures.
	ErrPriceNotFinalized = errors.New("margin engine: oracle price not finalized yet")

	// Configuration failures.
	ErrRiskCurveNotConfigured = errors.New("margin engine: risk curve not configured for product")

	// Timing failures.
	ErrAuctionTimestampBeforeUpdate = errors.New("margin engine: auction timestamp must be post vault latest update")

	// Lifecycle and ledger failures.
	ErrNilState               = errors.New("margin engine: state not configured")
	ErrNilOracle              = errors.New("margin engine: price source not configured")
	ErrVaultNotFound          = errors.New("margin engine: vault not found")
	ErrVaultExists            = errors.New("margin engine: vault already exists")
	ErrOptionNotFound         = errors.New("margin engine: option terms not found")
	ErrOptionExpired          = errors.New("margin engine: option already expired")
	ErrOptionNotExpired       = errors.New("margin engine: option not expired yet")
	ErrInvalidAmount          = errors.New("margin engine: amount must be positive")
	ErrInsufficientBalance    = errors.New("margin engine: vault balance too small")
	ErrAssetMismatch          = errors.New("margin engine: asset does not match vault entry")
	ErrLongNotPermitted       = errors.New("margin engine: naked margin vault can not hold a long option")
	ErrInvalidFinalVaultState = errors.New("margin engine: invalid final vault state")
	ErrNotLiquidatable        = errors.New("margin engine: vault is not under collateralized")
	ErrCollateralDust         = errors.New("margin engine: remaining collateral below dust threshold")
	ErrInvalidRatio           = errors.New("margin engine: ratio must be non-negative")
	ErrDurationOrder          = errors.New("margin engine: durations must be added in increasing order")
)
