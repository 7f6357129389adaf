package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"obsidian/core/types"
	"obsidian/crypto"
)

const (
	TypeLaunchCreated      = "launch.created"
	TypeBidSubmitted       = "launch.bid_submitted"
	TypeAllocationStarted  = "launch.allocation_started"
	TypeAllocationRecorded = "launch.allocation_recorded"
	TypeLaunchFinalized    = "launch.finalized"
	TypeTokensClaimed      = "launch.tokens_claimed"
)

type LaunchCreated struct {
	Authority     [20]byte
	Token         string
	Pool          [20]byte
	TotalTokens   *big.Int
	MaxAllocation *big.Int
	CreatedAt     int64
}

func (LaunchCreated) EventType() string { return TypeLaunchCreated }

func (e LaunchCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLaunchCreated,
		Attributes: map[string]string{
			"authority":     crypto.NewAddress(crypto.ObsidianPrefix, e.Authority[:]).String(),
			"token":         e.Token,
			"pool":          crypto.NewAddress(crypto.ObsidianPrefix, e.Pool[:]).String(),
			"totalTokens":   formatAmount(e.TotalTokens),
			"maxAllocation": formatAmount(e.MaxAllocation),
			"createdAt":     intToString(e.CreatedAt),
		},
	}
}

type BidSubmitted struct {
	Bidder [20]byte
	Amount *big.Int
	// PayloadSize is the byte length of the encrypted bid; the payload itself
	// never appears in events.
	PayloadSize int
}

func (BidSubmitted) EventType() string { return TypeBidSubmitted }

func (e BidSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeBidSubmitted,
		Attributes: map[string]string{
			"bidder":      crypto.NewAddress(crypto.ObsidianPrefix, e.Bidder[:]).String(),
			"amount":      formatAmount(e.Amount),
			"payloadSize": strconv.Itoa(e.PayloadSize),
		},
	}
}

type AllocationStarted struct {
	Timestamp int64
}

func (AllocationStarted) EventType() string { return TypeAllocationStarted }

func (e AllocationStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeAllocationStarted,
		Attributes: map[string]string{
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type AllocationRecorded struct {
	Bidder [20]byte
	Amount *big.Int
}

func (AllocationRecorded) EventType() string { return TypeAllocationRecorded }

func (e AllocationRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeAllocationRecorded,
		Attributes: map[string]string{
			"bidder": crypto.NewAddress(crypto.ObsidianPrefix, e.Bidder[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

type LaunchFinalized struct {
	ProofHash         [32]byte
	Settlement        string
	TokensDistributed *big.Int
}

func (LaunchFinalized) EventType() string { return TypeLaunchFinalized }

func (e LaunchFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeLaunchFinalized,
		Attributes: map[string]string{
			"proofHash":         hex.EncodeToString(e.ProofHash[:]),
			"settlement":        e.Settlement,
			"tokensDistributed": formatAmount(e.TokensDistributed),
		},
	}
}

type TokensClaimed struct {
	Bidder [20]byte
	Amount *big.Int
}

func (TokensClaimed) EventType() string { return TypeTokensClaimed }

func (e TokensClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTokensClaimed,
		Attributes: map[string]string{
			"bidder": crypto.NewAddress(crypto.ObsidianPrefix, e.Bidder[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
