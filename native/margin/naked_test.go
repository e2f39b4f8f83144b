package margin

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// nakedFixture wires a naked-margin WETH/USDC put market: USDC at 6 native
// decimals, a 0.75 spot shock, a single 7 day curve point at 0.1678 and a
// 1 USDC dust floor.
type nakedFixture struct {
	*fixture
	put     common.Address
	product Product
}

func newNakedFixture(t *testing.T) *nakedFixture {
	t.Helper()
	f := newFixture(t)
	nf := &nakedFixture{fixture: f}
	nf.put = f.registerPut(t, 0x10, 100)
	nf.product = Product{Underlying: f.weth, StrikeAsset: f.usdc, Collateral: f.usdc, Type: Put}

	if err := f.engine.RegisterAssetDecimals(f.usdc, 6); err != nil {
		t.Fatalf("register decimals: %v", err)
	}
	if err := f.engine.SetSpotShock(nf.product, frac27(3, 4)); err != nil {
		t.Fatalf("set spot shock: %v", err)
	}
	// Every exact remaining duration the scenarios will value at, in the
	// strictly increasing order the store demands.
	for _, duration := range []uint64{7*day - 4200, 7*day - 3700, 7*day - 1900, 7*day - 100, 7 * day} {
		if err := f.engine.SetTimeToExpiryValue(nf.product, duration, frac27(1678, 10000)); err != nil {
			t.Fatalf("set curve point %d: %v", duration, err)
		}
	}
	if err := f.engine.SetCollateralDust(f.usdc, scaled(1, 6)); err != nil {
		t.Fatalf("set dust: %v", err)
	}
	if err := f.engine.SetOracleDeviation(frac27(1, 20)); err != nil {
		t.Fatalf("set deviation: %v", err)
	}
	return nf
}

// fundedVault opens a naked vault holding a one option short at the exact
// requirement for a 100 spot: 0.1678*75 + 25 = 37.585 USDC.
func (nf *nakedFixture) fundedVault(t *testing.T) {
	t.Helper()
	nf.oracle.setLive(nf.weth, scaled(100, 18))
	if err := nf.engine.OpenVault(nf.owner, 1, NakedMargin); err != nil {
		t.Fatalf("open vault: %v", err)
	}
	if err := nf.engine.DepositCollateral(nf.owner, 1, nf.usdc, big.NewInt(37_585_000)); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
	if err := nf.engine.MintShort(nf.owner, 1, nf.put, scaled(1, 18)); err != nil {
		t.Fatalf("mint short: %v", err)
	}
}

func TestNakedMarginRequiredPut(t *testing.T) {
	nf := newNakedFixture(t)
	required, err := nf.engine.GetNakedMarginRequired(
		nf.product, scaled(1, 18), scaled(100, 18), scaled(100, 18), nf.expiry, 6)
	if err != nil {
		t.Fatalf("naked margin: %v", err)
	}
	if required.Cmp(big.NewInt(37_585_000)) != 0 {
		t.Fatalf("unexpected requirement: got %s want 37585000", required)
	}

	// Deep out of the money after the shock: only the curve ratio applies.
	// 0.1678 * 100 = 16.78 USDC at a 200 spot.
	required, err = nf.engine.GetNakedMarginRequired(
		nf.product, scaled(1, 18), scaled(100, 18), scaled(200, 18), nf.expiry, 6)
	if err != nil {
		t.Fatalf("naked margin: %v", err)
	}
	if required.Cmp(big.NewInt(16_780_000)) != 0 {
		t.Fatalf("unexpected requirement: got %s want 16780000", required)
	}
}

func TestNakedMarginRequiredCall(t *testing.T) {
	nf := newNakedFixture(t)
	product := Product{Underlying: nf.weth, StrikeAsset: nf.usdc, Collateral: nf.weth, Type: Call}
	if err := nf.engine.SetSpotShock(product, frac27(3, 4)); err != nil {
		t.Fatalf("set spot shock: %v", err)
	}
	if err := nf.engine.SetTimeToExpiryValue(product, 7*day, frac27(1678, 10000)); err != nil {
		t.Fatalf("set curve point: %v", err)
	}

	// Shocked spot 100/0.75 = 133.33..; moneyness 0.75 stays below one, so
	// the requirement is 0.1678*0.75 + 0.25 = 0.37585 underlying.
	required, err := nf.engine.GetNakedMarginRequired(
		product, scaled(1, 18), scaled(100, 18), scaled(100, 18), nf.expiry, 18)
	if err != nil {
		t.Fatalf("naked margin: %v", err)
	}
	want, _ := new(big.Int).SetString("375850000000000000", 10)
	if required.Cmp(want) != 0 {
		t.Fatalf("unexpected requirement: got %s want %s", required, want)
	}
}

func TestNakedMarginRequiredErrors(t *testing.T) {
	nf := newNakedFixture(t)

	if _, err := nf.engine.GetNakedMarginRequired(
		nf.product, scaled(1, 18), scaled(100, 18), scaled(100, 18), fixtureNow, 6); !errors.Is(err, ErrOptionExpired) {
		t.Fatalf("expected ErrOptionExpired, got %v", err)
	}
	// Off-curve duration has no configured ratio.
	if _, err := nf.engine.GetNakedMarginRequired(
		nf.product, scaled(1, 18), scaled(100, 18), scaled(100, 18), nf.expiry+1, 6); !errors.Is(err, ErrRiskCurveNotConfigured) {
		t.Fatalf("expected ErrRiskCurveNotConfigured, got %v", err)
	}
	// Unconfigured product.
	other := Product{Underlying: nf.usdc, StrikeAsset: nf.weth, Collateral: nf.weth, Type: Put}
	if _, err := nf.engine.GetNakedMarginRequired(
		other, scaled(1, 18), scaled(100, 18), scaled(100, 18), nf.expiry, 6); !errors.Is(err, ErrRiskCurveNotConfigured) {
		t.Fatalf("expected ErrRiskCurveNotConfigured, got %v", err)
	}
}

func TestNakedMarginDustFloor(t *testing.T) {
	nf := newNakedFixture(t)
	// A dust sized short still requires the full dust amount.
	required, err := nf.engine.GetNakedMarginRequired(
		nf.product, big.NewInt(1e13), scaled(100, 18), scaled(100, 18), nf.expiry, 6)
	if err != nil {
		t.Fatalf("naked margin: %v", err)
	}
	if required.Cmp(scaled(1, 6)) != 0 {
		t.Fatalf("expected dust floor, got %s", required)
	}
}

func TestNakedVaultMintAndWithdrawBoundaries(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	if err := nf.engine.WithdrawCollateral(nf.owner, 1, nf.usdc, big.NewInt(1)); !errors.Is(err, ErrInvalidFinalVaultState) {
		t.Fatalf("expected solvency rejection, got %v", err)
	}
	if err := nf.engine.SyncVault(nf.owner, 1); err != nil {
		t.Fatalf("sync at exact requirement: %v", err)
	}

	// Price drop makes the stored vault fail its next sync untouched.
	nf.oracle.setLive(nf.weth, scaled(80, 18))
	if err := nf.engine.SyncVault(nf.owner, 1); !errors.Is(err, ErrInvalidFinalVaultState) {
		t.Fatalf("expected sync rejection, got %v", err)
	}
	vault, err := nf.engine.GetVault(nf.owner, 1)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vault.CollateralAmounts[0].Cmp(big.NewInt(37_585_000)) != 0 {
		t.Fatalf("failed sync must not mutate the vault: %+v", vault)
	}
}

func TestIsLiquidatableSolventVault(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	nf.oracle.setRound(3, scaled(100, 18), fixtureNow+100)
	nf.engine.SetTimestamp(fixtureNow + 100)
	liquidatable, payout, starting, err := nf.engine.IsLiquidatable(nf.owner, 1, 3)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liquidatable || payout != nil || starting != nil {
		t.Fatalf("solvent vault flagged liquidatable: payout=%v starting=%v", payout, starting)
	}
}

func TestIsLiquidatableRejectsStaleRound(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	// A round stamped at the vault's own update time can not prove anything
	// about the position that followed it.
	nf.oracle.setRound(3, scaled(80, 18), fixtureNow)
	if _, _, _, err := nf.engine.IsLiquidatable(nf.owner, 1, 3); !errors.Is(err, ErrAuctionTimestampBeforeUpdate) {
		t.Fatalf("expected ErrAuctionTimestampBeforeUpdate, got %v", err)
	}
}

func TestIsLiquidatableAuctionDecay(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	roundTS := fixtureNow + 100
	nf.oracle.setRound(3, scaled(80, 18), roundTS)

	// Auction open: payout equals the starting price, the intrinsic value
	// less the deviation allowance, 20 - 0.05*80 = 16 USDC per option.
	nf.engine.SetTimestamp(roundTS)
	liquidatable, payout, starting, err := nf.engine.IsLiquidatable(nf.owner, 1, 3)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if !liquidatable {
		t.Fatalf("expected liquidatable vault")
	}
	if starting.Cmp(big.NewInt(16_000_000)) != 0 {
		t.Fatalf("unexpected starting price: got %s want 16000000", starting)
	}
	if payout.Cmp(big.NewInt(16_000_000)) != 0 {
		t.Fatalf("unexpected opening payout: got %s want 16000000", payout)
	}

	// Halfway through: linear decay toward the pro-rata collateral,
	// 16 + (37.585-16)/2 = 26.7925 USDC.
	nf.engine.SetTimestamp(roundTS + DefaultAuctionLength/2)
	_, payout, _, err = nf.engine.IsLiquidatable(nf.owner, 1, 3)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if payout.Cmp(big.NewInt(26_792_500)) != 0 {
		t.Fatalf("unexpected midpoint payout: got %s want 26792500", payout)
	}

	// At and past the end: the whole collateral, never more.
	nf.engine.SetTimestamp(roundTS + DefaultAuctionLength)
	_, payout, _, err = nf.engine.IsLiquidatable(nf.owner, 1, 3)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if payout.Cmp(big.NewInt(37_585_000)) != 0 {
		t.Fatalf("unexpected terminal payout: got %s want 37585000", payout)
	}
}

func TestLiquidateFullAtAuctionOpen(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	roundTS := fixtureNow + 100
	nf.oracle.setRound(3, scaled(80, 18), roundTS)
	nf.engine.SetTimestamp(roundTS)

	seized, err := nf.engine.Liquidate(nf.owner, 1, scaled(1, 18), 3)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Cmp(big.NewInt(16_000_000)) != 0 {
		t.Fatalf("unexpected seizure: got %s want 16000000", seized)
	}
	vault, err := nf.engine.GetVault(nf.owner, 1)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if len(vault.ShortOptions) != 0 {
		t.Fatalf("expected short closed, got %+v", vault)
	}
	if vault.CollateralAmounts[0].Cmp(big.NewInt(21_585_000)) != 0 {
		t.Fatalf("unexpected residual collateral: got %s want 21585000", vault.CollateralAmounts[0])
	}
	if vault.LastUpdated != roundTS {
		t.Fatalf("liquidation must stamp the vault: got %d want %d", vault.LastUpdated, roundTS)
	}
}

func TestLiquidateFullAfterAuctionEndClosesToZero(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	roundTS := fixtureNow + 100
	nf.oracle.setRound(3, scaled(80, 18), roundTS)
	nf.engine.SetTimestamp(roundTS + DefaultAuctionLength + 500)

	seized, err := nf.engine.Liquidate(nf.owner, 1, scaled(1, 18), 3)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Cmp(big.NewInt(37_585_000)) != 0 {
		t.Fatalf("unexpected seizure: got %s want 37585000", seized)
	}
	vault, err := nf.engine.GetVault(nf.owner, 1)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if len(vault.ShortOptions) != 0 || len(vault.CollateralAssets) != 0 {
		t.Fatalf("expected empty vault, got %+v", vault)
	}
}

func TestLiquidatePartial(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	roundTS := fixtureNow + 100
	nf.oracle.setRound(3, scaled(80, 18), roundTS)
	nf.engine.SetTimestamp(roundTS)

	seized, err := nf.engine.Liquidate(nf.owner, 1, scaled(5, 17), 3)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Cmp(big.NewInt(8_000_000)) != 0 {
		t.Fatalf("unexpected seizure: got %s want 8000000", seized)
	}
	vault, err := nf.engine.GetVault(nf.owner, 1)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vault.ShortAmounts[0].Cmp(scaled(5, 17)) != 0 {
		t.Fatalf("unexpected remaining short: got %s", vault.ShortAmounts[0])
	}
	if vault.CollateralAmounts[0].Cmp(big.NewInt(29_585_000)) != 0 {
		t.Fatalf("unexpected remaining collateral: got %s", vault.CollateralAmounts[0])
	}
}

func TestLiquidatePartialRejectsDustRemainder(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	// Raise the dust floor above what a half liquidation would leave behind.
	if err := nf.engine.SetCollateralDust(nf.usdc, big.NewInt(30_000_000)); err != nil {
		t.Fatalf("set dust: %v", err)
	}

	roundTS := fixtureNow + 100
	nf.oracle.setRound(3, scaled(80, 18), roundTS)
	nf.engine.SetTimestamp(roundTS)

	if _, err := nf.engine.Liquidate(nf.owner, 1, scaled(5, 17), 3); !errors.Is(err, ErrCollateralDust) {
		t.Fatalf("expected ErrCollateralDust, got %v", err)
	}
}

func TestLiquidateGuards(t *testing.T) {
	nf := newNakedFixture(t)
	nf.fundedVault(t)

	roundTS := fixtureNow + 100
	nf.engine.SetTimestamp(roundTS)

	// Solvent vault.
	nf.oracle.setRound(4, scaled(100, 18), roundTS)
	if _, err := nf.engine.Liquidate(nf.owner, 1, scaled(1, 18), 4); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}

	// Repay amount above the short position.
	nf.oracle.setRound(3, scaled(80, 18), roundTS)
	if _, err := nf.engine.Liquidate(nf.owner, 1, scaled(2, 18), 3); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Expired short can only settle, not auction.
	nf.engine.SetTimestamp(nf.expiry)
	nf.oracle.setRound(5, scaled(80, 18), nf.expiry-10)
	if _, err := nf.engine.Liquidate(nf.owner, 1, scaled(1, 18), 5); !errors.Is(err, ErrOptionExpired) {
		t.Fatalf("expected ErrOptionExpired, got %v", err)
	}
}

func TestLiquidatePartialToleratesMissingCollateralSlot(t *testing.T) {
	nf := newNakedFixture(t)
	if err := nf.engine.SetCollateralDust(nf.usdc, big.NewInt(0)); err != nil {
		t.Fatalf("set dust: %v", err)
	}

	// A record written outside the engine can hold a short with no
	// collateral slot at all; the auction has to settle it without
	// touching an entry that is not there.
	nf.state.vaults[vaultKey{nf.owner, 2}] = &Vault{
		Kind:         NakedMargin,
		ShortOptions: []common.Address{nf.put},
		ShortAmounts: []*big.Int{scaled(1, 18)},
		LastUpdated:  fixtureNow - 1,
	}
	nf.oracle.setRound(5, scaled(80, 18), fixtureNow)

	seized, err := nf.engine.Liquidate(nf.owner, 2, scaled(5, 17), 5)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Sign() != 0 {
		t.Fatalf("seized %s from an empty vault", seized)
	}

	stored := nf.state.vaults[vaultKey{nf.owner, 2}]
	if len(stored.ShortAmounts) != 1 || stored.ShortAmounts[0].Cmp(scaled(5, 17)) != 0 {
		t.Fatalf("unexpected remaining short: %+v", stored.ShortAmounts)
	}
	if len(stored.CollateralAssets) != 0 || len(stored.CollateralAmounts) != 0 {
		t.Fatalf("collateral slots appeared from nowhere: %+v", stored)
	}
}
