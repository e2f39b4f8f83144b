package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/margin"
)

// storedVault is the RLP shape of a vault record. Amounts are normalized to
// non-nil on the way in so the codec never sees a nil big.Int.
type storedVault struct {
	ShortOptions      []common.Address
	ShortAmounts      []*big.Int
	LongOptions       []common.Address
	LongAmounts       []*big.Int
	CollateralAssets  []common.Address
	CollateralAmounts []*big.Int
	Kind              uint8
	LastUpdated       uint64
}

func newStoredVault(v *margin.Vault) *storedVault {
	if v == nil {
		return nil
	}
	clone := v.Clone()
	return &storedVault{
		ShortOptions:      clone.ShortOptions,
		ShortAmounts:      clone.ShortAmounts,
		LongOptions:       clone.LongOptions,
		LongAmounts:       clone.LongAmounts,
		CollateralAssets:  clone.CollateralAssets,
		CollateralAmounts: clone.CollateralAmounts,
		Kind:              uint8(clone.Kind),
		LastUpdated:       clone.LastUpdated,
	}
}

func (s *storedVault) toVault() (*margin.Vault, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil vault record")
	}
	kind := margin.VaultKind(s.Kind)
	if kind != margin.FullyCollateralized && kind != margin.NakedMargin {
		return nil, fmt.Errorf("state: unknown vault kind %d", s.Kind)
	}
	vault := &margin.Vault{
		ShortOptions:      s.ShortOptions,
		ShortAmounts:      s.ShortAmounts,
		LongOptions:       s.LongOptions,
		LongAmounts:       s.LongAmounts,
		CollateralAssets:  s.CollateralAssets,
		CollateralAmounts: s.CollateralAmounts,
		Kind:              kind,
		LastUpdated:       s.LastUpdated,
	}
	return vault.Clone(), nil
}

// GetVault loads the vault stored for (owner, vaultID), nil when absent.
func (m *Manager) GetVault(owner common.Address, vaultID uint64) (*margin.Vault, error) {
	stored := new(storedVault)
	ok, err := m.get(vaultStorageKey(owner, vaultID), stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toVault()
}

// PutVault persists the vault record for (owner, vaultID).
func (m *Manager) PutVault(owner common.Address, vaultID uint64, vault *margin.Vault) error {
	if vault == nil {
		return fmt.Errorf("state: nil vault")
	}
	return m.put(vaultStorageKey(owner, vaultID), newStoredVault(vault))
}
