package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	vaultRecordPrefix     = []byte("margin/vault/")
	optionRecordPrefix    = []byte("margin/option/")
	riskCurvePrefix       = []byte("margin/curve/")
	collateralDustPrefix  = []byte("margin/dust/")
	assetDecimalsPrefix   = []byte("margin/decimals/")
	oracleDeviationKey    = ethcrypto.Keccak256([]byte("margin/oracle-deviation"))
	livePricePrefix       = []byte("oracle/live/")
	expiryPricePrefix     = []byte("oracle/expiry/")
	priceRoundPrefix      = []byte("oracle/round/")
)

func vaultStorageKey(owner common.Address, vaultID uint64) []byte {
	buf := make([]byte, 0, len(vaultRecordPrefix)+common.AddressLength+8)
	buf = append(buf, vaultRecordPrefix...)
	buf = append(buf, owner.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, vaultID)
	return ethcrypto.Keccak256(buf)
}

func optionStorageKey(option common.Address) []byte {
	buf := make([]byte, 0, len(optionRecordPrefix)+common.AddressLength)
	buf = append(buf, optionRecordPrefix...)
	buf = append(buf, option.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func riskCurveStorageKey(product common.Hash) []byte {
	buf := make([]byte, 0, len(riskCurvePrefix)+common.HashLength)
	buf = append(buf, riskCurvePrefix...)
	buf = append(buf, product.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func collateralDustStorageKey(asset common.Address) []byte {
	buf := make([]byte, 0, len(collateralDustPrefix)+common.AddressLength)
	buf = append(buf, collateralDustPrefix...)
	buf = append(buf, asset.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func assetDecimalsStorageKey(asset common.Address) []byte {
	buf := make([]byte, 0, len(assetDecimalsPrefix)+common.AddressLength)
	buf = append(buf, assetDecimalsPrefix...)
	buf = append(buf, asset.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func livePriceStorageKey(asset common.Address) []byte {
	buf := make([]byte, 0, len(livePricePrefix)+common.AddressLength)
	buf = append(buf, livePricePrefix...)
	buf = append(buf, asset.Bytes()...)
	return ethcrypto.Keccak256(buf)
}

func expiryPriceStorageKey(asset common.Address, expiry uint64) []byte {
	buf := make([]byte, 0, len(expiryPricePrefix)+common.AddressLength+8)
	buf = append(buf, expiryPricePrefix...)
	buf = append(buf, asset.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, expiry)
	return ethcrypto.Keccak256(buf)
}

func priceRoundStorageKey(asset common.Address, roundID uint64) []byte {
	buf := make([]byte, 0, len(priceRoundPrefix)+common.AddressLength+8)
	buf = append(buf, priceRoundPrefix...)
	buf = append(buf, asset.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, roundID)
	return ethcrypto.Keccak256(buf)
}
