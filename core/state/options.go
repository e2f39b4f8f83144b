package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/margin"
)

type storedOption struct {
	Underlying  common.Address
	StrikeAsset common.Address
	Collateral  common.Address
	Strike      *big.Int
	Expiry      uint64
	Type        uint8
}

func newStoredOption(terms *margin.OptionTerms) *storedOption {
	if terms == nil {
		return nil
	}
	strike := big.NewInt(0)
	if terms.Strike != nil {
		strike = new(big.Int).Set(terms.Strike)
	}
	return &storedOption{
		Underlying:  terms.Underlying,
		StrikeAsset: terms.StrikeAsset,
		Collateral:  terms.Collateral,
		Strike:      strike,
		Expiry:      terms.Expiry,
		Type:        uint8(terms.Type),
	}
}

func (s *storedOption) toTerms() (*margin.OptionTerms, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil option record")
	}
	kind := margin.OptionType(s.Type)
	if kind != margin.Call && kind != margin.Put {
		return nil, fmt.Errorf("state: unknown option type %d", s.Type)
	}
	strike := big.NewInt(0)
	if s.Strike != nil {
		strike = new(big.Int).Set(s.Strike)
	}
	return &margin.OptionTerms{
		Underlying:  s.Underlying,
		StrikeAsset: s.StrikeAsset,
		Collateral:  s.Collateral,
		Strike:      strike,
		Expiry:      s.Expiry,
		Type:        kind,
	}, nil
}

// GetOption loads the immutable terms registered for an option address, nil
// when the address is unknown.
func (m *Manager) GetOption(option common.Address) (*margin.OptionTerms, error) {
	stored := new(storedOption)
	ok, err := m.get(optionStorageKey(option), stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toTerms()
}

// PutOption persists option terms under the option's address.
func (m *Manager) PutOption(option common.Address, terms *margin.OptionTerms) error {
	if terms == nil {
		return fmt.Errorf("state: nil option terms")
	}
	return m.put(optionStorageKey(option), newStoredOption(terms))
}

// GetAssetDecimals returns the registered native decimal count for an asset.
// The boolean reports whether a registration exists; unregistered assets
// default at the engine layer.
func (m *Manager) GetAssetDecimals(asset common.Address) (uint8, bool, error) {
	var decimals uint8
	ok, err := m.get(assetDecimalsStorageKey(asset), &decimals)
	if err != nil || !ok {
		return 0, false, err
	}
	return decimals, true, nil
}

// PutAssetDecimals registers an asset's native decimal count.
func (m *Manager) PutAssetDecimals(asset common.Address, decimals uint8) error {
	return m.put(assetDecimalsStorageKey(asset), decimals)
}
