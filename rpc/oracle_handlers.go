package rpc

type expiryPriceParams struct {
	Asset  string `json:"asset"`
	Expiry uint64 `json:"expiry"`
	Price  string `json:"price"`
}

func (s *Server) handleOracle(req *RPCRequest) rpcResult {
	switch req.Method {
	case "oracle_setLivePrice":
		return s.oracleSetLivePrice(req)
	case "oracle_getLivePrice":
		return s.oracleGetLivePrice(req)
	case "oracle_submitExpiryPrice":
		return s.oracleExpiryPrice(req, false)
	case "oracle_disputeExpiryPrice":
		return s.oracleExpiryPrice(req, true)
	case "oracle_getExpiryPrice":
		return s.oracleGetExpiryPrice(req)
	case "oracle_recordRound":
		return s.oracleRecordRound(req)
	case "oracle_getRoundData":
		return s.oracleGetRoundData(req)
	default:
		return methodNotFound(req.Method)
	}
}

func (s *Server) oracleSetLivePrice(req *RPCRequest) rpcResult {
	var params struct {
		Asset string `json:"asset"`
		Price string `json:"price"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.SetLivePrice(asset, price); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "set"})
}

func (s *Server) oracleGetLivePrice(req *RPCRequest) rpcResult {
	var params struct {
		Asset string `json:"asset"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, err := s.node.GetLivePrice(asset)
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"price": formatAmount(price)})
}

func (s *Server) oracleExpiryPrice(req *RPCRequest, dispute bool) rpcResult {
	var params expiryPriceParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return invalidParams(err.Error())
	}
	if dispute {
		err = s.node.DisputeExpiryPrice(asset, params.Expiry, price)
	} else {
		err = s.node.SubmitExpiryPrice(asset, params.Expiry, price)
	}
	if err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "recorded"})
}

func (s *Server) oracleGetExpiryPrice(req *RPCRequest) rpcResult {
	var params struct {
		Asset  string `json:"asset"`
		Expiry uint64 `json:"expiry"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, finalized, err := s.node.GetExpiryPrice(asset, params.Expiry)
	if err != nil {
		return serverError(err)
	}
	return resultOK(struct {
		Price     string `json:"price"`
		Finalized bool   `json:"finalized"`
	}{Price: formatAmount(price), Finalized: finalized})
}

func (s *Server) oracleRecordRound(req *RPCRequest) rpcResult {
	var params struct {
		Asset     string `json:"asset"`
		RoundID   uint64 `json:"roundId"`
		Price     string `json:"price"`
		Timestamp uint64 `json:"timestamp"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return invalidParams(err.Error())
	}
	if err := s.node.RecordRound(asset, params.RoundID, price, params.Timestamp); err != nil {
		return serverError(err)
	}
	return resultOK(map[string]string{"status": "recorded"})
}

func (s *Server) oracleGetRoundData(req *RPCRequest) rpcResult {
	var params struct {
		Asset   string `json:"asset"`
		RoundID uint64 `json:"roundId"`
	}
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(err.Error())
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		return invalidParams(err.Error())
	}
	price, timestamp, err := s.node.GetRoundData(asset, params.RoundID)
	if err != nil {
		return serverError(err)
	}
	return resultOK(struct {
		Price     string `json:"price"`
		Timestamp uint64 `json:"timestamp"`
	}{Price: formatAmount(price), Timestamp: timestamp})
}
