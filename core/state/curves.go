package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/margin"
)

type storedRiskCurve struct {
	SpotShock     *big.Int
	TimesToExpiry []uint64
	Ratios        []*big.Int
}

func newStoredRiskCurve(curve *margin.RiskCurve) *storedRiskCurve {
	if curve == nil {
		return nil
	}
	shock := big.NewInt(0)
	if curve.SpotShock != nil {
		shock = new(big.Int).Set(curve.SpotShock)
	}
	stored := &storedRiskCurve{
		SpotShock:     shock,
		TimesToExpiry: append([]uint64(nil), curve.TimesToExpiry...),
		Ratios:        make([]*big.Int, len(curve.Ratios)),
	}
	for i, r := range curve.Ratios {
		if r != nil {
			stored.Ratios[i] = new(big.Int).Set(r)
		} else {
			stored.Ratios[i] = big.NewInt(0)
		}
	}
	return stored
}

func (s *storedRiskCurve) toCurve() (*margin.RiskCurve, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil risk curve record")
	}
	if len(s.TimesToExpiry) != len(s.Ratios) {
		return nil, fmt.Errorf("state: risk curve arity mismatch")
	}
	curve := &margin.RiskCurve{
		SpotShock:     big.NewInt(0),
		TimesToExpiry: append([]uint64(nil), s.TimesToExpiry...),
		Ratios:        make([]*big.Int, len(s.Ratios)),
	}
	if s.SpotShock != nil {
		curve.SpotShock = new(big.Int).Set(s.SpotShock)
	}
	for i, r := range s.Ratios {
		if r != nil {
			curve.Ratios[i] = new(big.Int).Set(r)
		} else {
			curve.Ratios[i] = big.NewInt(0)
		}
	}
	return curve, nil
}

// GetRiskCurve loads the risk curve configured for a product key, nil when
// the product has never been configured.
func (m *Manager) GetRiskCurve(product common.Hash) (*margin.RiskCurve, error) {
	stored := new(storedRiskCurve)
	ok, err := m.get(riskCurveStorageKey(product), stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toCurve()
}

// PutRiskCurve persists a product's risk curve.
func (m *Manager) PutRiskCurve(product common.Hash, curve *margin.RiskCurve) error {
	if curve == nil {
		return fmt.Errorf("state: nil risk curve")
	}
	return m.put(riskCurveStorageKey(product), newStoredRiskCurve(curve))
}

// GetCollateralDust returns the configured dust floor for an asset, nil when
// unset.
func (m *Manager) GetCollateralDust(asset common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(collateralDustStorageKey(asset), amount)
	if err != nil || !ok {
		return nil, err
	}
	return amount, nil
}

// PutCollateralDust persists an asset's dust floor.
func (m *Manager) PutCollateralDust(asset common.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.put(collateralDustStorageKey(asset), amount)
}

// GetOracleDeviation returns the global deviation ratio, nil when unset.
func (m *Manager) GetOracleDeviation() (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.get(oracleDeviationKey, value)
	if err != nil || !ok {
		return nil, err
	}
	return value, nil
}

// PutOracleDeviation persists the global deviation ratio.
func (m *Manager) PutOracleDeviation(value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return m.put(oracleDeviationKey, value)
}
