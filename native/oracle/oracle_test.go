package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type expiryKey struct {
	asset  common.Address
	expiry uint64
}

type roundKey struct {
	asset common.Address
	round uint64
}

type mockStoreState struct {
	live   map[common.Address]*big.Int
	expiry map[expiryKey]*PricePoint
	rounds map[roundKey]*Round
}

func newMockStoreState() *mockStoreState {
	return &mockStoreState{
		live:   make(map[common.Address]*big.Int),
		expiry: make(map[expiryKey]*PricePoint),
		rounds: make(map[roundKey]*Round),
	}
}

func (m *mockStoreState) GetLivePrice(asset common.Address) (*big.Int, error) {
	return m.live[asset], nil
}

func (m *mockStoreState) PutLivePrice(asset common.Address, price *big.Int) error {
	m.live[asset] = price
	return nil
}

func (m *mockStoreState) GetExpiryPricePoint(asset common.Address, expiry uint64) (*PricePoint, error) {
	return m.expiry[expiryKey{asset, expiry}], nil
}

func (m *mockStoreState) PutExpiryPricePoint(asset common.Address, expiry uint64, point *PricePoint) error {
	m.expiry[expiryKey{asset, expiry}] = point
	return nil
}

func (m *mockStoreState) GetPriceRound(asset common.Address, roundID uint64) (*Round, error) {
	return m.rounds[roundKey{asset, roundID}], nil
}

func (m *mockStoreState) PutPriceRound(asset common.Address, roundID uint64, round *Round) error {
	m.rounds[roundKey{asset, roundID}] = round
	return nil
}

func newTestStore(ts uint64) *Store {
	store := NewStore()
	store.SetState(newMockStoreState())
	store.SetTimestamp(ts)
	store.SetDisputePeriod(7200)
	return store
}

func price18(n int64) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return exp.Mul(big.NewInt(n), exp)
}

func TestLivePriceRoundTrip(t *testing.T) {
	store := newTestStore(1000)
	weth := common.Address{0x01}

	if _, err := store.GetLivePrice(weth); !errors.Is(err, ErrPriceNotFound) {
		t.Fatalf("expected ErrPriceNotFound, got %v", err)
	}
	if err := store.SetLivePrice(weth, price18(100)); err != nil {
		t.Fatalf("set live price: %v", err)
	}
	got, err := store.GetLivePrice(weth)
	if err != nil {
		t.Fatalf("get live price: %v", err)
	}
	if got.Cmp(price18(100)) != 0 {
		t.Fatalf("unexpected price: got %s", got)
	}
	if err := store.SetLivePrice(weth, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestExpiryPriceLifecycle(t *testing.T) {
	weth := common.Address{0x01}
	expiry := uint64(5000)
	store := newTestStore(4000)
	store.SetLockingPeriod(300)

	// Before expiry.
	if err := store.SubmitExpiryPrice(weth, expiry, price18(150)); !errors.Is(err, ErrExpiryInFuture) {
		t.Fatalf("expected ErrExpiryInFuture, got %v", err)
	}
	// After expiry but inside the locking period.
	store.SetTimestamp(expiry + 100)
	if err := store.SubmitExpiryPrice(weth, expiry, price18(150)); !errors.Is(err, ErrLockingPeriod) {
		t.Fatalf("expected ErrLockingPeriod, got %v", err)
	}

	store.SetTimestamp(expiry + 300)
	if err := store.SubmitExpiryPrice(weth, expiry, price18(150)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := store.SubmitExpiryPrice(weth, expiry, price18(151)); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	// Inside the dispute window the price is visible but not finalized.
	got, finalized, err := store.GetExpiryPrice(weth, expiry)
	if err != nil {
		t.Fatalf("get expiry price: %v", err)
	}
	if finalized || got.Cmp(price18(150)) != 0 {
		t.Fatalf("expected unfinalized 150, got %s finalized=%v", got, finalized)
	}

	// Past the window it finalizes with no further action.
	store.SetTimestamp(expiry + 300 + 7200)
	got, finalized, err = store.GetExpiryPrice(weth, expiry)
	if err != nil {
		t.Fatalf("get expiry price: %v", err)
	}
	if !finalized || got.Cmp(price18(150)) != 0 {
		t.Fatalf("expected finalized 150, got %s finalized=%v", got, finalized)
	}
}

func TestDisputeReplacesPriceInsideWindowOnly(t *testing.T) {
	weth := common.Address{0x01}
	expiry := uint64(5000)
	store := newTestStore(expiry + 10)

	if err := store.DisputeExpiryPrice(weth, expiry, price18(140)); !errors.Is(err, ErrNotYetSubmitted) {
		t.Fatalf("expected ErrNotYetSubmitted, got %v", err)
	}
	if err := store.SubmitExpiryPrice(weth, expiry, price18(150)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	store.SetTimestamp(expiry + 10 + 7199)
	if err := store.DisputeExpiryPrice(weth, expiry, price18(140)); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	// The dispute does not restart the window.
	_, finalized, err := store.GetExpiryPrice(weth, expiry)
	if err != nil {
		t.Fatalf("get expiry price: %v", err)
	}
	if finalized {
		t.Fatal("price must not finalize inside the original window")
	}
	store.SetTimestamp(expiry + 10 + 7200)
	got, finalized, err := store.GetExpiryPrice(weth, expiry)
	if err != nil {
		t.Fatalf("get expiry price: %v", err)
	}
	if !finalized || got.Cmp(price18(140)) != 0 {
		t.Fatalf("expected disputed price finalized, got %s finalized=%v", got, finalized)
	}

	if err := store.DisputeExpiryPrice(weth, expiry, price18(145)); !errors.Is(err, ErrDisputePeriod) {
		t.Fatalf("expected ErrDisputePeriod, got %v", err)
	}
}

func TestRoundDataWriteOnce(t *testing.T) {
	weth := common.Address{0x01}
	store := newTestStore(1000)

	if _, _, err := store.GetRoundData(weth, 3); !errors.Is(err, ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
	if err := store.RecordRound(weth, 3, price18(80), 900); err != nil {
		t.Fatalf("record round: %v", err)
	}
	if err := store.RecordRound(weth, 3, price18(81), 901); !errors.Is(err, ErrRoundExists) {
		t.Fatalf("expected ErrRoundExists, got %v", err)
	}
	got, ts, err := store.GetRoundData(weth, 3)
	if err != nil {
		t.Fatalf("get round data: %v", err)
	}
	if got.Cmp(price18(80)) != 0 || ts != 900 {
		t.Fatalf("unexpected round data: %s at %d", got, ts)
	}
}
