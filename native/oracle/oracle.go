package oracle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNilState         = errors.New("oracle: state not configured")
	ErrInvalidPrice     = errors.New("oracle: price must be positive")
	ErrPriceNotFound    = errors.New("oracle: no price for asset")
	ErrAlreadySubmitted = errors.New("oracle: expiry price already submitted")
	ErrNotYetSubmitted  = errors.New("oracle: expiry price not submitted")
	ErrLockingPeriod    = errors.New("oracle: locking period not over")
	ErrDisputePeriod    = errors.New("oracle: dispute period over")
	ErrExpiryInFuture   = errors.New("oracle: expiry timestamp in the future")
	ErrRoundNotFound    = errors.New("oracle: round not found")
	ErrRoundExists      = errors.New("oracle: round already recorded")
)

// PricePoint is a submitted expiry price awaiting the end of its dispute
// window. Prices are at 18 decimals.
type PricePoint struct {
	Price       *big.Int
	SubmittedAt uint64
}

// Round is a historical price observation tied to a monotonically increasing
// round identifier, consumed by liquidation fairness checks.
type Round struct {
	Price     *big.Int
	Timestamp uint64
}

// storeState is the persistence boundary of the price store.
type storeState interface {
	GetLivePrice(asset common.Address) (*big.Int, error)
	PutLivePrice(asset common.Address, price *big.Int) error
	GetExpiryPricePoint(asset common.Address, expiry uint64) (*PricePoint, error)
	PutExpiryPricePoint(asset common.Address, expiry uint64, point *PricePoint) error
	GetPriceRound(asset common.Address, roundID uint64) (*Round, error)
	PutPriceRound(asset common.Address, roundID uint64, round *Round) error
}

// Store is the asset price surface: a live spot price per asset, write-once
// expiry prices finalized after a dispute window, and round-stamped
// historical prices. It satisfies the margin engine's price source contract.
// Authorization of submitters and disputers is the caller's concern.
type Store struct {
	state         storeState
	timestamp     uint64
	lockingPeriod uint64
	disputePeriod uint64
}

func NewStore() *Store {
	return &Store{}
}

// SetState wires the store to the external persistence layer.
func (s *Store) SetState(state storeState) {
	if s == nil {
		return
	}
	s.state = state
}

// SetTimestamp records the current time used for locking and dispute checks.
func (s *Store) SetTimestamp(ts uint64) {
	if s == nil {
		return
	}
	s.timestamp = ts
}

// SetLockingPeriod configures the delay after expiry before a price may be
// submitted, giving the reporter time to observe a settled market.
func (s *Store) SetLockingPeriod(seconds uint64) {
	if s == nil {
		return
	}
	s.lockingPeriod = seconds
}

// SetDisputePeriod configures the window after submission during which an
// expiry price may be corrected and is not yet usable for settlement.
func (s *Store) SetDisputePeriod(seconds uint64) {
	if s == nil {
		return
	}
	s.disputePeriod = seconds
}

// SetLivePrice overwrites the asset's spot price.
func (s *Store) SetLivePrice(asset common.Address, price *big.Int) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	return s.state.PutLivePrice(asset, new(big.Int).Set(price))
}

// GetLivePrice returns the asset's spot price, usable by convention.
func (s *Store) GetLivePrice(asset common.Address) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, ErrNilState
	}
	price, err := s.state.GetLivePrice(asset)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, ErrPriceNotFound
	}
	return new(big.Int).Set(price), nil
}

// SubmitExpiryPrice records the settlement price for (asset, expiry). The
// expiry must have passed, the locking period must be over, and a price may
// only be submitted once; corrections go through DisputeExpiryPrice.
func (s *Store) SubmitExpiryPrice(asset common.Address, expiry uint64, price *big.Int) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if expiry > s.timestamp {
		return ErrExpiryInFuture
	}
	if s.timestamp < expiry+s.lockingPeriod {
		return ErrLockingPeriod
	}
	existing, err := s.state.GetExpiryPricePoint(asset, expiry)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadySubmitted
	}
	point := &PricePoint{Price: new(big.Int).Set(price), SubmittedAt: s.timestamp}
	return s.state.PutExpiryPricePoint(asset, expiry, point)
}

// DisputeExpiryPrice replaces a submitted expiry price while its dispute
// window is still open. The submission timestamp is kept so a dispute can not
// extend the window.
func (s *Store) DisputeExpiryPrice(asset common.Address, expiry uint64, price *big.Int) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	point, err := s.state.GetExpiryPricePoint(asset, expiry)
	if err != nil {
		return err
	}
	if point == nil {
		return ErrNotYetSubmitted
	}
	if s.timestamp >= point.SubmittedAt+s.disputePeriod {
		return ErrDisputePeriod
	}
	updated := &PricePoint{Price: new(big.Int).Set(price), SubmittedAt: point.SubmittedAt}
	return s.state.PutExpiryPricePoint(asset, expiry, updated)
}

// GetExpiryPrice returns the settlement price for (asset, expiry) and whether
// it has survived its dispute window. Settlement flows must not act on an
// unfinalized price.
func (s *Store) GetExpiryPrice(asset common.Address, expiry uint64) (*big.Int, bool, error) {
	if s == nil || s.state == nil {
		return nil, false, ErrNilState
	}
	point, err := s.state.GetExpiryPricePoint(asset, expiry)
	if err != nil {
		return nil, false, err
	}
	if point == nil || point.Price == nil {
		return nil, false, ErrPriceNotFound
	}
	finalized := s.timestamp >= point.SubmittedAt+s.disputePeriod
	return new(big.Int).Set(point.Price), finalized, nil
}

// RecordRound stamps a historical price observation under a round identifier.
// Rounds are write-once.
func (s *Store) RecordRound(asset common.Address, roundID uint64, price *big.Int, timestamp uint64) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	existing, err := s.state.GetPriceRound(asset, roundID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrRoundExists
	}
	round := &Round{Price: new(big.Int).Set(price), Timestamp: timestamp}
	return s.state.PutPriceRound(asset, roundID, round)
}

// GetRoundData returns the price and timestamp recorded for an oracle round.
func (s *Store) GetRoundData(asset common.Address, roundID uint64) (*big.Int, uint64, error) {
	if s == nil || s.state == nil {
		return nil, 0, ErrNilState
	}
	round, err := s.state.GetPriceRound(asset, roundID)
	if err != nil {
		return nil, 0, err
	}
	if round == nil || round.Price == nil {
		return nil, 0, ErrRoundNotFound
	}
	return new(big.Int).Set(round.Price), round.Timestamp, nil
}
