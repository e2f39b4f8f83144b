package margin

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func shortVault(option common.Address, amount *big.Int) *Vault {
	return &Vault{
		ShortOptions: []common.Address{option},
		ShortAmounts: []*big.Int{amount},
	}
}

func (v *Vault) withLong(option common.Address, amount *big.Int) *Vault {
	v.LongOptions = []common.Address{option}
	v.LongAmounts = []*big.Int{amount}
	return v
}

func (v *Vault) withCollateral(asset common.Address, amount *big.Int) *Vault {
	v.CollateralAssets = []common.Address{asset}
	v.CollateralAmounts = []*big.Int{amount}
	return v
}

func TestExcessCollateralNakedPut(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)

	vault := shortVault(put, scaled(1, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if isExcess || amount.Cmp(scaled(250, 18)) != 0 {
		t.Fatalf("expected 250 deficit, got %s excess=%v", amount, isExcess)
	}

	vault = vault.withCollateral(f.usdc, scaled(250, 18))
	amount, isExcess, err = f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Sign() != 0 {
		t.Fatalf("expected exact collateralization, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralPutSpread(t *testing.T) {
	f := newFixture(t)
	put250 := f.registerPut(t, 0x10, 250)
	put200 := f.registerPut(t, 0x11, 200)

	// Short the higher strike: the spread width must be posted.
	vault := shortVault(put250, scaled(1, 18)).withLong(put200, scaled(1, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if isExcess || amount.Cmp(scaled(50, 18)) != 0 {
		t.Fatalf("expected 50 deficit, got %s excess=%v", amount, isExcess)
	}

	// Short the lower strike: the long dominates and the credit is excess.
	vault = shortVault(put200, scaled(1, 18)).withLong(put250, scaled(1, 18))
	amount, isExcess, err = f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Cmp(scaled(50, 18)) != 0 {
		t.Fatalf("expected 50 excess, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralPartiallyCoveredPut(t *testing.T) {
	f := newFixture(t)
	put250 := f.registerPut(t, 0x10, 250)
	put200 := f.registerPut(t, 0x11, 200)

	// Two shorts against one long: one leg is covered at spread width, the
	// other needs full strike collateral. 2*250 - 200 = 300.
	vault := shortVault(put250, scaled(2, 18)).withLong(put200, scaled(1, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if isExcess || amount.Cmp(scaled(300, 18)) != 0 {
		t.Fatalf("expected 300 deficit, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralNakedCall(t *testing.T) {
	f := newFixture(t)
	call := f.registerCall(t, 0x20, 200)

	vault := shortVault(call, scaled(1, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.weth)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if isExcess || amount.Cmp(scaled(1, 18)) != 0 {
		t.Fatalf("expected 1 underlying deficit, got %s excess=%v", amount, isExcess)
	}

	vault = vault.withCollateral(f.weth, scaled(1, 18))
	amount, isExcess, err = f.engine.GetExcessCollateral(vault, f.weth)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Sign() != 0 {
		t.Fatalf("expected exact collateralization, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralCallSpread(t *testing.T) {
	f := newFixture(t)
	call200 := f.registerCall(t, 0x20, 200)
	call250 := f.registerCall(t, 0x21, 250)

	// Fully covered spread: requirement is the spread width over the long
	// strike, (250-200)/250 = 0.2 underlying per short.
	vault := shortVault(call200, scaled(1, 18)).withLong(call250, scaled(1, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.weth)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	want := scaled(2, 17)
	if isExcess || amount.Cmp(want) != 0 {
		t.Fatalf("expected %s deficit, got %s excess=%v", want, amount, isExcess)
	}

	// Partially covered: one uncovered short plus the spread term on the full
	// short amount, 1 + (250-200)*2/250 = 1.4.
	vault = shortVault(call200, scaled(2, 18)).withLong(call250, scaled(1, 18))
	amount, isExcess, err = f.engine.GetExcessCollateral(vault, f.weth)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	want = scaled(14, 17)
	if isExcess || amount.Cmp(want) != 0 {
		t.Fatalf("expected %s deficit, got %s excess=%v", want, amount, isExcess)
	}

	// A long above the short strike never charges a negative spread.
	vault = shortVault(call250, scaled(1, 18)).withLong(call200, scaled(1, 18))
	amount, isExcess, err = f.engine.GetExcessCollateral(vault, f.weth)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Sign() != 0 {
		t.Fatalf("expected zero requirement, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralNoShort(t *testing.T) {
	f := newFixture(t)
	vault := (&Vault{}).withCollateral(f.usdc, scaled(77, 18))
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Cmp(scaled(77, 18)) != 0 {
		t.Fatalf("expected full collateral as excess, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralDenominationMismatch(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)
	vault := shortVault(put, scaled(1, 18))
	if _, _, err := f.engine.GetExcessCollateral(vault, f.weth); !errors.Is(err, ErrDenominationMismatch) {
		t.Fatalf("expected ErrDenominationMismatch, got %v", err)
	}
}

func TestExcessCollateralShapeCheckOrder(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)

	vault := &Vault{
		ShortOptions: []common.Address{put, put},
		ShortAmounts: []*big.Int{scaled(1, 18), scaled(1, 18)},
		LongOptions:  []common.Address{put, put},
		LongAmounts:  []*big.Int{scaled(1, 18), scaled(1, 18)},
	}
	if _, _, err := f.engine.GetExcessCollateral(vault, f.usdc); !errors.Is(err, ErrTooManyShorts) {
		t.Fatalf("expected ErrTooManyShorts first, got %v", err)
	}

	vault = shortVault(put, scaled(1, 18))
	vault.CollateralAssets = []common.Address{f.usdc}
	if _, _, err := f.engine.GetExcessCollateral(vault, f.usdc); !errors.Is(err, ErrCollateralAmountMismatch) {
		t.Fatalf("expected ErrCollateralAmountMismatch, got %v", err)
	}
}

func TestExcessCollateralPostExpiryPut(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)
	vault := shortVault(put, scaled(1, 18)).withCollateral(f.usdc, scaled(250, 18))

	f.engine.SetTimestamp(f.expiry)
	f.oracle.setExpiry(f.weth, f.expiry, scaled(150, 18), true)

	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Cmp(scaled(150, 18)) != 0 {
		t.Fatalf("expected 150 excess after settlement, got %s excess=%v", amount, isExcess)
	}
}

func TestExcessCollateralPostExpirySpread(t *testing.T) {
	f := newFixture(t)
	put250 := f.registerPut(t, 0x10, 250)
	put200 := f.registerPut(t, 0x11, 200)
	vault := shortVault(put250, scaled(1, 18)).
		withLong(put200, scaled(1, 18)).
		withCollateral(f.usdc, scaled(50, 18))

	f.engine.SetTimestamp(f.expiry)
	f.oracle.setExpiry(f.weth, f.expiry, scaled(150, 18), true)

	// Short owes 100, long pays 50, collateral 50: net exactly zero.
	amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if !isExcess || amount.Sign() != 0 {
		t.Fatalf("expected zero net, got %s excess=%v", amount, isExcess)
	}
}

func TestExpiredPayoutRate(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)
	call := f.registerCall(t, 0x20, 200)

	if _, err := f.engine.GetExpiredPayoutRate(put); !errors.Is(err, ErrOptionNotExpired) {
		t.Fatalf("expected ErrOptionNotExpired, got %v", err)
	}

	f.engine.SetTimestamp(f.expiry)
	f.oracle.setExpiry(f.weth, f.expiry, scaled(200, 18), true)

	rate, err := f.engine.GetExpiredPayoutRate(put)
	if err != nil {
		t.Fatalf("put payout rate: %v", err)
	}
	if rate.Cmp(scaled(50, 18)) != 0 {
		t.Fatalf("unexpected put payout rate: got %s want %s", rate, scaled(50, 18))
	}

	// At-the-money call settles worthless.
	rate, err = f.engine.GetExpiredPayoutRate(call)
	if err != nil {
		t.Fatalf("call payout rate: %v", err)
	}
	if rate.Sign() != 0 {
		t.Fatalf("expected worthless call, got %s", rate)
	}

	f.oracle.setExpiry(f.weth, f.expiry, scaled(250, 18), true)
	rate, err = f.engine.GetExpiredPayoutRate(call)
	if err != nil {
		t.Fatalf("call payout rate: %v", err)
	}
	if rate.Cmp(scaled(2, 17)) != 0 {
		t.Fatalf("unexpected call payout rate: got %s want %s", rate, scaled(2, 17))
	}
}

func TestExcessCollateralIdempotent(t *testing.T) {
	f := newFixture(t)
	put250 := f.registerPut(t, 0x10, 250)
	put200 := f.registerPut(t, 0x11, 200)
	vault := shortVault(put250, scaled(1, 18)).
		withLong(put200, scaled(1, 18)).
		withCollateral(f.usdc, scaled(50, 18))

	first, firstExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	second, secondExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if first.Cmp(second) != 0 || firstExcess != secondExcess {
		t.Fatalf("valuation drifted: %s/%v then %s/%v", first, firstExcess, second, secondExcess)
	}

	// Repeats stay stable after settlement too.
	f.engine.SetTimestamp(f.expiry)
	f.oracle.setExpiry(f.weth, f.expiry, scaled(150, 18), true)
	first, firstExcess, err = f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	second, secondExcess, err = f.engine.GetExcessCollateral(vault, f.usdc)
	if err != nil {
		t.Fatalf("excess collateral: %v", err)
	}
	if first.Cmp(second) != 0 || firstExcess != secondExcess {
		t.Fatalf("settled valuation drifted: %s/%v then %s/%v", first, firstExcess, second, secondExcess)
	}
}

func TestSettledPutExcessMonotonicInExpiryPrice(t *testing.T) {
	f := newFixture(t)
	put := f.registerPut(t, 0x10, 250)
	vault := shortVault(put, scaled(1, 18)).withCollateral(f.usdc, scaled(250, 18))

	f.engine.SetTimestamp(f.expiry)

	// The short put's liability shrinks as the settlement price rises, so
	// the owner's excess never decreases across the sweep.
	prev := big.NewInt(-1)
	for _, price := range []int64{50, 100, 150, 200, 249, 250, 300} {
		f.oracle.setExpiry(f.weth, f.expiry, scaled(price, 18), true)
		amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.usdc)
		if err != nil {
			t.Fatalf("excess at price %d: %v", price, err)
		}
		if !isExcess {
			t.Fatalf("fully funded put underwater at price %d: %s", price, amount)
		}
		if amount.Cmp(prev) < 0 {
			t.Fatalf("excess fell from %s to %s at price %d", prev, amount, price)
		}
		prev = amount
	}
	if prev.Cmp(scaled(250, 18)) != 0 {
		t.Fatalf("expected full collateral back above strike, got %s", prev)
	}
}

func TestSettledCallExcessMonotonicInExpiryPrice(t *testing.T) {
	f := newFixture(t)
	call := f.registerCall(t, 0x20, 200)
	vault := shortVault(call, scaled(1, 18)).withCollateral(f.weth, scaled(1, 18))

	f.engine.SetTimestamp(f.expiry)

	// Dual of the put sweep: the call's cash value grows with the
	// settlement price, so the excess never increases.
	prev := scaled(2, 18)
	for _, price := range []int64{150, 200, 201, 250, 300, 400, 1000} {
		f.oracle.setExpiry(f.weth, f.expiry, scaled(price, 18), true)
		amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.weth)
		if err != nil {
			t.Fatalf("excess at price %d: %v", price, err)
		}
		if !isExcess {
			t.Fatalf("fully funded call underwater at price %d: %s", price, amount)
		}
		if amount.Cmp(prev) > 0 {
			t.Fatalf("excess rose from %s to %s at price %d", prev, amount, price)
		}
		prev = amount
	}
}

func TestSettledCallExcessRoundsDown(t *testing.T) {
	f := newFixture(t)
	call := f.registerCall(t, 0x20, 200)
	vault := shortVault(call, scaled(1, 18)).withCollateral(f.weth, scaled(1, 18))

	f.engine.SetTimestamp(f.expiry)

	// Non-terminating cash values floor at the collateral's native
	// decimals: 1 - 1/3 and 1 - 2/3 settle to the truncated base units.
	cases := []struct {
		price int64
		want  string
	}{
		{300, "666666666666666666"},
		{600, "333333333333333333"},
	}
	for _, tc := range cases {
		f.oracle.setExpiry(f.weth, f.expiry, scaled(tc.price, 18), true)
		amount, isExcess, err := f.engine.GetExcessCollateral(vault, f.weth)
		if err != nil {
			t.Fatalf("excess at price %d: %v", tc.price, err)
		}
		want, _ := new(big.Int).SetString(tc.want, 10)
		if !isExcess || amount.Cmp(want) != 0 {
			t.Fatalf("at price %d got %s excess=%v, want %s", tc.price, amount, isExcess, want)
		}
	}
}
