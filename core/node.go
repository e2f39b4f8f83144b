package core

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/core/state"
	"github.com/opynfinance/OpynV2/native/margin"
	"github.com/opynfinance/OpynV2/native/oracle"
	"github.com/opynfinance/OpynV2/storage"
)

// Node is the action dispatcher: it owns the margin engine, the price store
// and the state manager, serializes all state transitions under one lock, and
// stamps both engines with a single timestamp per operation so every
// computation inside one call observes the same instant. RPC handlers and
// tooling talk to the node, never to the engines directly.
type Node struct {
	mu sync.Mutex

	manager *state.Manager
	engine  *margin.Engine
	prices  *oracle.Store
	now     func() uint64
}

// NewNode wires a node over the given database.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)

	prices := oracle.NewStore()
	prices.SetState(manager)

	engine := margin.NewEngine()
	engine.SetState(manager)
	engine.SetOracle(prices)

	return &Node{
		manager: manager,
		engine:  engine,
		prices:  prices,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetClock overrides the time source, used by tests and replay tooling.
func (n *Node) SetClock(now func() uint64) {
	if n == nil || now == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.now = now
}

// SetAuctionLength configures the liquidation auction duration.
func (n *Node) SetAuctionLength(seconds uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetAuctionLength(seconds)
}

// SetOraclePeriods configures the price store's locking and dispute windows.
func (n *Node) SetOraclePeriods(locking, dispute uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prices.SetLockingPeriod(locking)
	n.prices.SetDisputePeriod(dispute)
}

// stamp fixes the operation's observation time on both engines. Callers must
// hold the lock.
func (n *Node) stamp() {
	ts := n.now()
	n.engine.SetTimestamp(ts)
	n.prices.SetTimestamp(ts)
}

// ApplyRiskConfig runs the given function against the engine under the node's
// lock, used by startup code replaying operator risk configuration.
func (n *Node) ApplyRiskConfig(apply func(*margin.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return apply(n.engine)
}

func (n *Node) RegisterOption(option common.Address, terms *margin.OptionTerms) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.RegisterOption(option, terms)
}

func (n *Node) GetOption(option common.Address) (*margin.OptionTerms, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	terms, err := n.manager.GetOption(option)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		return nil, margin.ErrOptionNotFound
	}
	return terms, nil
}

func (n *Node) OpenVault(owner common.Address, vaultID uint64, kind margin.VaultKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.OpenVault(owner, vaultID, kind)
}

func (n *Node) GetVault(owner common.Address, vaultID uint64) (*margin.Vault, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetVault(owner, vaultID)
}

func (n *Node) MintShort(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.MintShort(owner, vaultID, option, amount)
}

func (n *Node) BurnShort(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.BurnShort(owner, vaultID, option, amount)
}

func (n *Node) DepositLong(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.DepositLong(owner, vaultID, option, amount)
}

func (n *Node) WithdrawLong(owner common.Address, vaultID uint64, option common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.WithdrawLong(owner, vaultID, option, amount)
}

func (n *Node) DepositCollateral(owner common.Address, vaultID uint64, asset common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.DepositCollateral(owner, vaultID, asset, amount)
}

func (n *Node) WithdrawCollateral(owner common.Address, vaultID uint64, asset common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.WithdrawCollateral(owner, vaultID, asset, amount)
}

func (n *Node) SyncVault(owner common.Address, vaultID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.SyncVault(owner, vaultID)
}

func (n *Node) SettleVault(owner common.Address, vaultID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.SettleVault(owner, vaultID)
}

// GetExcessCollateral values the stored vault against the denomination asset.
func (n *Node) GetExcessCollateral(owner common.Address, vaultID uint64, denomination common.Address) (*big.Int, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	vault, err := n.engine.GetVault(owner, vaultID)
	if err != nil {
		return nil, false, err
	}
	return n.engine.GetExcessCollateral(vault, denomination)
}

// GetNakedMarginRequired resolves the option's terms and prices its naked
// requirement at the given spot.
func (n *Node) GetNakedMarginRequired(option common.Address, shortAmount, spotPrice *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	terms, err := n.manager.GetOption(option)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		return nil, margin.ErrOptionNotFound
	}
	decimals, err := n.collateralDecimals(terms.Collateral)
	if err != nil {
		return nil, err
	}
	product := margin.Product{
		Underlying:  terms.Underlying,
		StrikeAsset: terms.StrikeAsset,
		Collateral:  terms.Collateral,
		Type:        terms.Type,
	}
	return n.engine.GetNakedMarginRequired(product, shortAmount, terms.Strike, spotPrice, terms.Expiry, decimals)
}

func (n *Node) GetExpiredPayoutRate(option common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.GetExpiredPayoutRate(option)
}

func (n *Node) IsLiquidatable(owner common.Address, vaultID uint64, roundID uint64) (bool, *big.Int, *big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.IsLiquidatable(owner, vaultID, roundID)
}

func (n *Node) Liquidate(owner common.Address, vaultID uint64, amount *big.Int, roundID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.engine.Liquidate(owner, vaultID, amount, roundID)
}

func (n *Node) RegisterAssetDecimals(asset common.Address, decimals uint8) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.RegisterAssetDecimals(asset, decimals)
}

func (n *Node) SetSpotShock(p margin.Product, ratio *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetSpotShock(p, ratio)
}

func (n *Node) SetProductTimeToExpiry(p margin.Product, duration uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetProductTimeToExpiry(p, duration)
}

func (n *Node) SetTimeToExpiryValue(p margin.Product, duration uint64, ratio *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetTimeToExpiryValue(p, duration, ratio)
}

func (n *Node) SetCollateralDust(asset common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetCollateralDust(asset, amount)
}

func (n *Node) SetOracleDeviation(value *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetOracleDeviation(value)
}

func (n *Node) SetLivePrice(asset common.Address, price *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.prices.SetLivePrice(asset, price)
}

func (n *Node) GetLivePrice(asset common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prices.GetLivePrice(asset)
}

func (n *Node) SubmitExpiryPrice(asset common.Address, expiry uint64, price *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.prices.SubmitExpiryPrice(asset, expiry, price)
}

func (n *Node) DisputeExpiryPrice(asset common.Address, expiry uint64, price *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.prices.DisputeExpiryPrice(asset, expiry, price)
}

func (n *Node) GetExpiryPrice(asset common.Address, expiry uint64) (*big.Int, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.prices.GetExpiryPrice(asset, expiry)
}

func (n *Node) RecordRound(asset common.Address, roundID uint64, price *big.Int, timestamp uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stamp()
	return n.prices.RecordRound(asset, roundID, price, timestamp)
}

func (n *Node) GetRoundData(asset common.Address, roundID uint64) (*big.Int, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prices.GetRoundData(asset, roundID)
}

// collateralDecimals mirrors the engine's default when an asset has no
// registration.
func (n *Node) collateralDecimals(asset common.Address) (uint8, error) {
	decimals, ok, err := n.manager.GetAssetDecimals(asset)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 18, nil
	}
	return decimals, nil
}
