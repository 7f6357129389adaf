package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"obsidian/core/state"
	"obsidian/core/types"
	"obsidian/crypto"
	"obsidian/native/launch"
)

type launchResult struct {
	Authority         string `json:"authority"`
	Token             string `json:"token"`
	Pool              string `json:"pool"`
	TotalTokens       string `json:"totalTokens"`
	MaxAllocation     string `json:"maxAllocation"`
	TokensDistributed string `json:"tokensDistributed"`
	Finalized         bool   `json:"finalized"`
	Settlement        string `json:"settlement"`
	CreatedAt         int64  `json:"createdAt"`
}

func newLaunchResult(l *launch.Launch) *launchResult {
	return &launchResult{
		Authority:         crypto.NewAddress(crypto.ObsidianPrefix, l.Authority[:]).String(),
		Token:             l.Token,
		Pool:              crypto.NewAddress(crypto.ObsidianPrefix, l.Pool[:]).String(),
		TotalTokens:       l.TotalTokens.String(),
		MaxAllocation:     l.MaxAllocation.String(),
		TokensDistributed: l.TokensDistributed.String(),
		Finalized:         l.Finalized,
		Settlement:        l.Settlement.String(),
		CreatedAt:         l.CreatedAt,
	}
}

type bidResult struct {
	Bidder       string `json:"bidder"`
	PayloadSize  int    `json:"payloadSize"`
	EscrowAmount string `json:"escrowAmount"`
	Allocation   string `json:"allocation"`
	Processed    bool   `json:"processed"`
	Claimed      bool   `json:"claimed"`
	CreatedAt    int64  `json:"createdAt"`
}

func newBidResult(b *launch.Bid) *bidResult {
	return &bidResult{
		Bidder:       crypto.NewAddress(crypto.ObsidianPrefix, b.Bidder[:]).String(),
		PayloadSize:  len(b.EncryptedPayload),
		EscrowAmount: b.EscrowAmount.String(),
		Allocation:   b.Allocation.String(),
		Processed:    b.Processed,
		Claimed:      b.Claimed,
		CreatedAt:    b.CreatedAt,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddressParam(raw, field string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, fmt.Errorf("invalid %s: %w", field, err)
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmountParam(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: not a base-10 integer", field)
	}
	return value, nil
}

func parseHexParam(raw, field string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return decoded, nil
}

// writeEngineError maps ledger errors to JSON-RPC error codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, launch.ErrUnauthorized), errors.Is(err, state.ErrMintUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, launch.ErrLaunchNotFound),
		errors.Is(err, launch.ErrBidNotFound),
		errors.Is(err, state.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, launch.ErrLaunchExists),
		errors.Is(err, launch.ErrBidExists),
		errors.Is(err, launch.ErrLaunchFinalized),
		errors.Is(err, launch.ErrAlreadyFinalized),
		errors.Is(err, launch.ErrNotFinalized),
		errors.Is(err, launch.ErrNoAllocation),
		errors.Is(err, launch.ErrAlreadyClaimed),
		errors.Is(err, launch.ErrClaimsDisabled),
		errors.Is(err, launch.ErrSupplyExceeded),
		errors.Is(err, state.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeConflict, err.Error(), nil)
	case errors.Is(err, launch.ErrPayloadTooLarge),
		errors.Is(err, launch.ErrInvalidAmount),
		errors.Is(err, launch.ErrInvalidToken),
		errors.Is(err, launch.ErrInvalidAllocationInput),
		errors.Is(err, state.ErrInvalidAmount),
		errors.Is(err, state.ErrDecimalMismatch):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

type initializeParams struct {
	Authority     string `json:"authority"`
	Token         string `json:"token"`
	TotalTokens   string `json:"totalTokens"`
	MaxAllocation string `json:"maxAllocation"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	authority, err := parseAddressParam(params.Authority, "authority")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	total, err := parseAmountParam(params.TotalTokens, "totalTokens")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	maxAlloc := big.NewInt(0)
	if strings.TrimSpace(params.MaxAllocation) != "" {
		maxAlloc, err = parseAmountParam(params.MaxAllocation, "maxAllocation")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	created, err := s.node.InitializeLaunch(authority, params.Token, total, maxAlloc)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newLaunchResult(created))
}

type submitBidParams struct {
	Bidder           string `json:"bidder"`
	EncryptedPayload string `json:"encryptedPayload"`
	Amount           string `json:"amount"`
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, req *RPCRequest) {
	var params submitBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	bidder, err := parseAddressParam(params.Bidder, "bidder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payload, err := parseHexParam(params.EncryptedPayload, "encryptedPayload")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmountParam(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bid, err := s.node.SubmitBid(bidder, payload, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newBidResult(bid))
}

func (s *Server) handleStartAllocation(w http.ResponseWriter, req *RPCRequest) {
	if err := s.node.StartAllocation(); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"started": true})
}

type recordAllocationParams struct {
	Caller string `json:"caller"`
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

func (s *Server) handleRecordAllocation(w http.ResponseWriter, req *RPCRequest) {
	var params recordAllocationParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bidder, err := parseAddressParam(params.Bidder, "bidder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmountParam(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bid, err := s.node.RecordAllocation(caller, bidder, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newBidResult(bid))
}

type finalizeParams struct {
	Caller string `json:"caller"`
	Proof  string `json:"proof"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, req *RPCRequest) {
	var params finalizeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proof, err := parseHexParam(params.Proof, "proof")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.FinalizeLaunch(caller, proof); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"finalized": true})
}

type distributeParams struct {
	Caller     string   `json:"caller"`
	Proof      string   `json:"proof"`
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
}

func (s *Server) handleFinalizeAndDistribute(w http.ResponseWriter, req *RPCRequest) {
	var params distributeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proof, err := parseHexParam(params.Proof, "proof")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipients := make([][20]byte, len(params.Recipients))
	for i, raw := range params.Recipients {
		recipient, err := parseAddressParam(raw, fmt.Sprintf("recipients[%d]", i))
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		recipients[i] = recipient
	}
	amounts := make([]*big.Int, len(params.Amounts))
	for i, raw := range params.Amounts {
		amount, err := parseAmountParam(raw, fmt.Sprintf("amounts[%d]", i))
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		amounts[i] = amount
	}
	if err := s.node.FinalizeAndDistribute(caller, proof, recipients, amounts); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"finalized": true, "distributed": true})
}

type claimParams struct {
	Bidder string `json:"bidder"`
}

func (s *Server) handleClaim(w http.ResponseWriter, req *RPCRequest) {
	var params claimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	bidder, err := parseAddressParam(params.Bidder, "bidder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bid, err := s.node.ClaimTokens(bidder)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newBidResult(bid))
}

func (s *Server) handleGetLaunch(w http.ResponseWriter, req *RPCRequest) {
	l, ok := s.node.Launch()
	if !ok {
		writeEngineError(w, req.ID, launch.ErrLaunchNotFound)
		return
	}
	writeResult(w, req.ID, newLaunchResult(l))
}

type getBidParams struct {
	Bidder string `json:"bidder"`
}

func (s *Server) handleGetBid(w http.ResponseWriter, req *RPCRequest) {
	var params getBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	bidder, err := parseAddressParam(params.Bidder, "bidder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bid, ok := s.node.Bid(bidder)
	if !ok {
		writeEngineError(w, req.ID, launch.ErrBidNotFound)
		return
	}
	writeResult(w, req.ID, newBidResult(bid))
}

type balanceOfParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type balanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params balanceOfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	addr, err := parseAddressParam(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.BalanceOf(addr, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &balanceResult{
		Address: crypto.NewAddress(crypto.ObsidianPrefix, addr[:]).String(),
		Token:   strings.ToUpper(strings.TrimSpace(params.Token)),
		Balance: balance.String(),
	})
}

type eventsParams struct {
	Limit int `json:"limit"`
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) {
	limit := 0
	if len(req.Params) == 1 {
		var params eventsParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
			return
		}
		limit = params.Limit
	}
	events := s.node.Events(limit)
	out := make([]types.Event, 0, len(events))
	out = append(out, events...)
	writeResult(w, req.ID, out)
}
