package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/oracle"
)

type storedPricePoint struct {
	Price       *big.Int
	SubmittedAt uint64
}

type storedPriceRound struct {
	Price     *big.Int
	Timestamp uint64
}

// GetLivePrice returns the asset's stored spot price, nil when none has been
// set.
func (m *Manager) GetLivePrice(asset common.Address) (*big.Int, error) {
	price := new(big.Int)
	ok, err := m.get(livePriceStorageKey(asset), price)
	if err != nil || !ok {
		return nil, err
	}
	return price, nil
}

// PutLivePrice overwrites the asset's spot price.
func (m *Manager) PutLivePrice(asset common.Address, price *big.Int) error {
	if price == nil {
		return fmt.Errorf("state: nil live price")
	}
	return m.put(livePriceStorageKey(asset), price)
}

// GetExpiryPricePoint returns the submitted expiry price for (asset, expiry),
// nil when none has been submitted.
func (m *Manager) GetExpiryPricePoint(asset common.Address, expiry uint64) (*oracle.PricePoint, error) {
	stored := new(storedPricePoint)
	ok, err := m.get(expiryPriceStorageKey(asset, expiry), stored)
	if err != nil || !ok {
		return nil, err
	}
	price := big.NewInt(0)
	if stored.Price != nil {
		price = new(big.Int).Set(stored.Price)
	}
	return &oracle.PricePoint{Price: price, SubmittedAt: stored.SubmittedAt}, nil
}

// PutExpiryPricePoint persists a submitted expiry price.
func (m *Manager) PutExpiryPricePoint(asset common.Address, expiry uint64, point *oracle.PricePoint) error {
	if point == nil || point.Price == nil {
		return fmt.Errorf("state: nil expiry price point")
	}
	stored := &storedPricePoint{Price: new(big.Int).Set(point.Price), SubmittedAt: point.SubmittedAt}
	return m.put(expiryPriceStorageKey(asset, expiry), stored)
}

// GetPriceRound returns the recorded round observation, nil when the round is
// unknown.
func (m *Manager) GetPriceRound(asset common.Address, roundID uint64) (*oracle.Round, error) {
	stored := new(storedPriceRound)
	ok, err := m.get(priceRoundStorageKey(asset, roundID), stored)
	if err != nil || !ok {
		return nil, err
	}
	price := big.NewInt(0)
	if stored.Price != nil {
		price = new(big.Int).Set(stored.Price)
	}
	return &oracle.Round{Price: price, Timestamp: stored.Timestamp}, nil
}

// PutPriceRound persists a round observation.
func (m *Manager) PutPriceRound(asset common.Address, roundID uint64, round *oracle.Round) error {
	if round == nil || round.Price == nil {
		return fmt.Errorf("state: nil price round")
	}
	stored := &storedPriceRound{Price: new(big.Int).Set(round.Price), Timestamp: round.Timestamp}
	return m.put(priceRoundStorageKey(asset, roundID), stored)
}
