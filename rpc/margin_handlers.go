package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opynfinance/OpynV2/native/margin"
)

// decodeParams unmarshals the single positional params object every method
// takes. Amount fields travel as decimal strings so callers never lose
// precision to JSON floats.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected params array of one object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params payload: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	return amount, nil
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func parseOptionType(field, value string) (margin.OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "put":
		return margin.Put, nil
	case "call":
		return margin.Call, nil
	default:
		return margin.Call, fmt.Errorf("%s must be \"put\" or \"call\"", field)
	}
}

type vaultLegParams struct {
	Owner   string `json:"owner"`
	VaultID uint64 `json:"vaultId"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type vaultRefParams struct {
	Owner   string `json:"owner"`
	VaultID uint64 `json:"vaultId"`
}

type optionTermsParams struct {
	Option      string `json:"option"`
	Underlying  string `json:"underlying"`
	StrikeAsset string `json:"strikeAsset"`
	Collateral  string `json:"collateral"`
	Strike      string `json:"strike"`
	Expiry      uint64 `json:"expiry"`
	Type        string `json:"type"`
}

type productParams struct {
	Underlying  string `json:"underlying"`
	StrikeAsset string `json:"strikeAsset"`
	Collateral  string `json:"collateral"`
	Type        string `json:"type"`
}

type vaultResult struct {
	ShortOptions      []string `json:"shortOptions"`
	ShortAmounts      []string `json:"shortAmounts"`
	LongOptions       []string `json:"longOptions"`
	LongAmounts       []string `json:"longAmounts"`
	CollateralAssets  []string `json:"collateralAssets"`
	CollateralAmounts []string `json:"collateralAmounts"`
	Kind              string   `json:"kind"`
	LastUpdated       uint64   `json:"lastUpdated"`
}

type optionTermsResult struct {
	Underlying  string `json:"underlying"`
	StrikeAsset string `json:"strikeAsset"`
	Collateral  string `json:"collateral"`
	Strike      string `json:"strike"`
	Expiry      uint64 `json:"expiry"`
	Type        string `json:"type"`
}

type excessCollateralResult struct {
	Amount   string `json:"amount"`
	IsExcess bool   `json:"isExcess"`
}

type liquidationResult struct {
	Liquidatable       bool   `json:"liquidatable"`
	Price              string `json:"price"`
	CollateralPerShort string `json:"collateralPerShort"`
}

func formatAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func formatAmounts(amounts []*big.Int) []string {
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = formatAmount(a)
	}
	return out
}

func vaultView(v *margin.Vault) vaultResult {
	kind := "fully-collateralized"
	if v.Kind == margin.NakedMargin {
		kind = "naked-margin"
	}
	return vaultResult{
		ShortOptions:      formatAddresses(v.ShortOptions),
		ShortAmounts:      formatAmounts(v.ShortAmounts),
		LongOptions:       formatAddresses(v.LongOptions),
		LongAmounts:       formatAmounts(v.LongAmounts),
		CollateralAssets:  formatAddresses(v.CollateralAssets),
		CollateralAmounts: formatAmounts(v.CollateralAmounts),
		Kind:              kind,
		LastUpdated:       v.LastUpdated,
	}
}

func (s *Server) handleMargin(req *RPCRequest) rpcResult {
	switch req.Method {
	case "margin_registerOption":
		return s.marginRegisterOption(req)
	case "margin_getOption":
		return s.marginGetOption(req)
	case "margin_registerAssetDecimals":
		return s.marginRegisterAssetDecimals(req)
	case "margin_openVault":
		return s.marginOpenVault(req)
	case "margin_getVault":
		return s.marginGetVault(req)
	case "margin_mintShort":
		return s.marginVaultLeg(req, s.node.MintShort)
	case "margin_burnShort":
		return s.marginVaultLeg(req, s.node.BurnShort)
	case "margin_depositLong":
		return s.marginVaultLeg(req, s.node.DepositLong)
	case "margin_withdrawLong":
		return s.marginVaultLeg(req, s.node.WithdrawLong)
	case "margin_depositCollateral":
		return s.marginVaultLeg(req, s.node.DepositCollateral)
	case "margin_withdrawCollateral":
		return s.marginVaultLeg(req, s.node.WithdrawCollateral)
	case "margin_syncVault":
		return s.marginSyncVault(req)
	case "margin_settleVault":
		return s.marginSettleVault(req)
	case "margin_getExcessCollateral":
		return s.marginGetExcessCollateral(req)
	case "margin_getNakedMarginRequired":
		return s.marginGetNakedMarginRequired(req)
	case "margin_getExpiredPayoutRate":
		return s.marginGetExpiredPayoutRate(req)
	case "margin_isLiquidatable":
		return s.marginIsLiquidatable(req)
	case "margin_liquidate":
		return s.marginLiquidate(req)
	case "margin_setSpotShock":
		return s.marginSetSpotShock(req)
	case "margin_setProductTimeToExpiry":
		return s.marginSetProductTimeToExpiry(req)
	case "margin_setTimeToExpiryValue":
		return s.marginSetTimeToExpiryValue(req)
	case "margin_setCollateralDust":
		return s.marginSetCollateralDust(req)
	case "margin_setOracleDeviation":
		return s.marginSetOracleDeviation(req)
	default:
		return methodNotFound(req.Method)
	}
}

func (s *Server) marginRegisterOption(req *RPCRequest) rpcResult {
	var params optionTermsParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	option, err := parseAddress("option", params.Option)
	if err != nil {
		return invalidParams(err.Error())
	}
	underlying, err := parseAddress("underlying", params.Underlying)
	if err != nil {
		return invalidParams(err.Error())
	}
	strikeAsset, err := parseAddress("strikeAsset", params.StrikeAsset)
	if err != nil {
		return invalidParams(err.Error())
	}
	collateral, err := parseAddress("collateral", params.Collateral)
	if err != nil {
		return invalidParams(err.Error())
	}
	strike, err := parseAmount("strike", params.Strike)
	if err != nil {
		return invalidParams(err.Error())
	}
	optionType, err := parseOptionType("type", params.Type)
	if err != nil {
		return invalidParams(err.Error())
	}
	terms := &margin.OptionTerms{
		Underlying:  underlying,
		StrikeAsset: strikeAsset,
		Collateral:  collateral,
		Strike:      strike,
		Expiry:      params.Expiry,
		Type:        optionType,
	}
	if err := s.node.RegisterOption(option, terms); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "registered"})
}

func (s *Server) marginGetOption(req *RPCRequest) rpcResult {
	var params struct {
		Option string `json:"option"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	option, err := parseAddress("option", params.Option)
	if err != nil {
		return invalidParams(err.Error())
	}
	terms, err := s.node.GetOption(option)
	if err != nil {
		return serverError(err)
	}
	return resultOK(optionTermsResult{
		Underlying:  terms.Underlying.Hex(),
		StrikeAsset: terms.StrikeAsset.Hex(),
		Collateral:  terms.Collateral.Hex(),
		Strike:      formatAmount(terms.Strike),
		Expiry:      terms.Expiry,
		Type:        terms.Type.String(),
	})
}

func (s *Server) marginRegisterAssetDecimals(req *RPCRequest) rpcResult {
	var params struct {
		Asset    string `json:"asset"`
		Decimals uint8  `json:"decimals"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.RegisterAssetDecimals(asset, params.Decimals); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "registered"})
}

func (s *Server) marginOpenVault(req *RPCRequest) rpcResult {
	var params struct {
		Owner   string `json:"owner"`
		VaultID uint64 `json:"vaultId"`
		Kind    string `json:"kind"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	kind := margin.FullyCollateralized
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case "", "fully-collateralized":
	case "naked-margin":
		kind = margin.NakedMargin
	default:
		return invalidParams("kind must be \"fully-collateralized\" or \"naked-margin\"")
	}
	if err := s.node.OpenVault(owner, params.VaultID, kind); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "opened"})
}

func (s *Server) marginGetVault(req *RPCRequest) rpcResult {
	var params vaultRefParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	vault, err := s.node.GetVault(owner, params.VaultID)
	if err != nil {
		return serverError(err)
	}
	return resultOK(vaultView(vault))
}

func (s *Server) marginVaultLeg(req *RPCRequest, op func(common.Address, uint64, common.Address, *big.Int) error) rpcResult {
	var params vaultLegParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := op(owner, params.VaultID, asset, amount); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "applied"})
}

func (s *Server) marginSyncVault(req *RPCRequest) rpcResult {
	var params vaultRefParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SyncVault(owner, params.VaultID); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "synced"})
}

func (s *Server) marginSettleVault(req *RPCRequest) rpcResult {
	var params vaultRefParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	payout, err := s.node.SettleVault(owner, params.VaultID)
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"payout": formatAmount(payout)})
}

func (s *Server) marginGetExcessCollateral(req *RPCRequest) rpcResult {
	var params struct {
		Owner        string `json:"owner"`
		VaultID      uint64 `json:"vaultId"`
		Denomination string `json:"denomination"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	denomination, err := parseAddress("denomination", params.Denomination)
	if err != nil {
		return invalidParams(err.Error())
	}
	amount, isExcess, err := s.node.GetExcessCollateral(owner, params.VaultID, denomination)
	if err != nil {
		return serverError(err)
	}
	return resultOK(excessCollateralResult{Amount: formatAmount(amount), IsExcess: isExcess})
}

func (s *Server) marginGetNakedMarginRequired(req *RPCRequest) rpcResult {
	var params struct {
		Option      string `json:"option"`
		ShortAmount string `json:"shortAmount"`
		SpotPrice   string `json:"spotPrice"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	option, err := parseAddress("option", params.Option)
	if err != nil {
		return invalidParams(err.Error())
	}
	shortAmount, err := parseAmount("shortAmount", params.ShortAmount)
	if err != nil {
		return invalidParams(err.Error())
	}
	spotPrice, err := parseAmount("spotPrice", params.SpotPrice)
	if err != nil {
		return invalidParams(err.Error())
	}
	required, err := s.node.GetNakedMarginRequired(option, shortAmount, spotPrice)
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"required": formatAmount(required)})
}

func (s *Server) marginGetExpiredPayoutRate(req *RPCRequest) rpcResult {
	var params struct {
		Option string `json:"option"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	option, err := parseAddress("option", params.Option)
	if err != nil {
		return invalidParams(err.Error())
	}
	rate, err := s.node.GetExpiredPayoutRate(option)
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"rate": formatAmount(rate)})
}

func (s *Server) marginIsLiquidatable(req *RPCRequest) rpcResult {
	var params struct {
		Owner   string `json:"owner"`
		VaultID uint64 `json:"vaultId"`
		RoundID uint64 `json:"roundId"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	liquidatable, price, perShort, err := s.node.IsLiquidatable(owner, params.VaultID, params.RoundID)
	if err != nil {
		return serverError(err)
	}
	out := liquidationResult{Liquidatable: liquidatable}
	if liquidatable {
		out.Price = formatAmount(price)
		out.CollateralPerShort = formatAmount(perShort)
	}
	return resultOK(out)
}

func (s *Server) marginLiquidate(req *RPCRequest) rpcResult {
	var params struct {
		Owner   string `json:"owner"`
		VaultID uint64 `json:"vaultId"`
		Amount  string `json:"amount"`
		RoundID uint64 `json:"roundId"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return invalidParams(err.Error())
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return invalidParams(err.Error())
	}
	seized, err := s.node.Liquidate(owner, params.VaultID, amount, params.RoundID)
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"collateralSeized": formatAmount(seized)})
}

func (s *Server) parseProduct(params productParams) (margin.Product, error) {
	underlying, err := parseAddress("underlying", params.Underlying)
	if err != nil {
		return margin.Product{}, err
	}
	strikeAsset, err := parseAddress("strikeAsset", params.StrikeAsset)
	if err != nil {
		return margin.Product{}, err
	}
	collateral, err := parseAddress("collateral", params.Collateral)
	if err != nil {
		return margin.Product{}, err
	}
	optionType, err := parseOptionType("type", params.Type)
	if err != nil {
		return margin.Product{}, err
	}
	return margin.Product{
		Underlying:  underlying,
		StrikeAsset: strikeAsset,
		Collateral:  collateral,
		Type:        optionType,
	}, nil
}

func (s *Server) marginSetSpotShock(req *RPCRequest) rpcResult {
	var params struct {
		productParams
		Ratio string `json:"ratio"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	product, err := s.parseProduct(params.productParams)
	if err != nil {
		return invalidParams(err.Error())
	}
	ratio, err := parseAmount("ratio", params.Ratio)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetSpotShock(product, ratio); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "set"})
}

func (s *Server) marginSetProductTimeToExpiry(req *RPCRequest) rpcResult {
	var params struct {
		productParams
		Duration uint64 `json:"duration"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	product, err := s.parseProduct(params.productParams)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetProductTimeToExpiry(product, params.Duration); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "registered"})
}

func (s *Server) marginSetTimeToExpiryValue(req *RPCRequest) rpcResult {
	var params struct {
		productParams
		Duration uint64 `json:"duration"`
		Ratio    string `json:"ratio"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	product, err := s.parseProduct(params.productParams)
	if err != nil {
		return invalidParams(err.Error())
	}
	ratio, err := parseAmount("ratio", params.Ratio)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetTimeToExpiryValue(product, params.Duration, ratio); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "set"})
}

func (s *Server) marginSetCollateralDust(req *RPCRequest) rpcResult {
	var params struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetCollateralDust(asset, amount); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "set"})
}

func (s *Server) marginSetOracleDeviation(req *RPCRequest) rpcResult {
	var params struct {
		Value string `json:"value"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	value, err := parseAmount("value", params.Value)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetOracleDeviation(value); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "set"})
}
