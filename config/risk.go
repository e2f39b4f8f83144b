package config

import (
	"fmt"
	"math/big"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/margin"
)

// RiskConfig is the operator-authored risk parameter file: per-product spot
// shocks and time-to-expiry curves, per-asset decimal counts and dust floors,
// and the global oracle deviation ratio. Ratios are decimal strings at 27
// decimals; amounts are in the asset's native decimals.
type RiskConfig struct {
	OracleDeviation string          `toml:"OracleDeviation"`
	Products        []ProductConfig `toml:"Product"`
	Assets          []AssetConfig   `toml:"Asset"`
}

type ProductConfig struct {
	Underlying  string        `toml:"Underlying"`
	StrikeAsset string        `toml:"StrikeAsset"`
	Collateral  string        `toml:"Collateral"`
	Put         bool          `toml:"Put"`
	SpotShock   string        `toml:"SpotShock"`
	Curve       []CurvePoint  `toml:"Curve"`
}

type CurvePoint struct {
	Duration uint64 `toml:"Duration"`
	Ratio    string `toml:"Ratio"`
}

type AssetConfig struct {
	Address  string `toml:"Address"`
	Decimals uint8  `toml:"Decimals"`
	Dust     string `toml:"Dust"`
}

// LoadRisk reads and validates a risk parameter file.
func LoadRisk(path string) (*RiskConfig, error) {
	cfg := &RiskConfig{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("risk config %s contains unknown field %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RiskConfig) validate() error {
	if c.OracleDeviation != "" {
		if _, err := parseAmount(c.OracleDeviation); err != nil {
			return fmt.Errorf("risk config: OracleDeviation: %w", err)
		}
	}
	for i, p := range c.Products {
		for _, field := range []struct {
			name  string
			value string
		}{
			{"Underlying", p.Underlying},
			{"StrikeAsset", p.StrikeAsset},
			{"Collateral", p.Collateral},
		} {
			if !common.IsHexAddress(field.value) {
				return fmt.Errorf("risk config: product %d: %s is not a hex address", i, field.name)
			}
		}
		if _, err := parseAmount(p.SpotShock); err != nil {
			return fmt.Errorf("risk config: product %d: SpotShock: %w", i, err)
		}
		var prev uint64
		for j, point := range p.Curve {
			if j > 0 && point.Duration <= prev {
				return fmt.Errorf("risk config: product %d: curve durations must increase", i)
			}
			prev = point.Duration
			if _, err := parseAmount(point.Ratio); err != nil {
				return fmt.Errorf("risk config: product %d: curve point %d: %w", i, j, err)
			}
		}
	}
	for i, a := range c.Assets {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("risk config: asset %d: Address is not a hex address", i)
		}
		if a.Dust != "" {
			if _, err := parseAmount(a.Dust); err != nil {
				return fmt.Errorf("risk config: asset %d: Dust: %w", i, err)
			}
		}
	}
	return nil
}

// Apply writes the configuration into the margin engine's risk surface.
// Application is idempotent so the daemon can replay the file on every start.
func (c *RiskConfig) Apply(engine *margin.Engine) error {
	if c.OracleDeviation != "" {
		deviation, err := parseAmount(c.OracleDeviation)
		if err != nil {
			return err
		}
		if err := engine.SetOracleDeviation(deviation); err != nil {
			return err
		}
	}
	for _, p := range c.Products {
		product := margin.Product{
			Underlying:  common.HexToAddress(p.Underlying),
			StrikeAsset: common.HexToAddress(p.StrikeAsset),
			Collateral:  common.HexToAddress(p.Collateral),
			Type:        margin.Call,
		}
		if p.Put {
			product.Type = margin.Put
		}
		shock, err := parseAmount(p.SpotShock)
		if err != nil {
			return err
		}
		if err := engine.SetSpotShock(product, shock); err != nil {
			return err
		}
		for _, point := range p.Curve {
			ratio, err := parseAmount(point.Ratio)
			if err != nil {
				return err
			}
			if err := engine.SetTimeToExpiryValue(product, point.Duration, ratio); err != nil {
				return err
			}
		}
	}
	for _, a := range c.Assets {
		asset := common.HexToAddress(a.Address)
		if err := engine.RegisterAssetDecimals(asset, a.Decimals); err != nil {
			return err
		}
		if a.Dust != "" {
			dust, err := parseAmount(a.Dust)
			if err != nil {
				return err
			}
			if err := engine.SetCollateralDust(asset, dust); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal integer %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative value %q", value)
	}
	return parsed, nil
}
