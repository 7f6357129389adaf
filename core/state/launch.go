package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"obsidian/native/launch"
)

func launchStorageKey() []byte {
	return hashKey(launchRecordPrefix, nil)
}

func bidStorageKey(bidder [20]byte) []byte {
	return hashKey(bidRecordPrefix, bidder[:])
}

type storedLaunch struct {
	Authority         [20]byte
	Token             string
	Pool              [20]byte
	TotalTokens       *big.Int
	MaxAllocation     *big.Int
	TokensDistributed *big.Int
	Finalized         bool
	Settlement        uint8
	CreatedAt         *big.Int
}

func newStoredLaunch(l *launch.Launch) *storedLaunch {
	if l == nil {
		return nil
	}
	clone := l.Clone()
	return &storedLaunch{
		Authority:         clone.Authority,
		Token:             clone.Token,
		Pool:              clone.Pool,
		TotalTokens:       clone.TotalTokens,
		MaxAllocation:     clone.MaxAllocation,
		TokensDistributed: clone.TokensDistributed,
		Finalized:         clone.Finalized,
		Settlement:        uint8(clone.Settlement),
		CreatedAt:         big.NewInt(clone.CreatedAt),
	}
}

func (s *storedLaunch) toLaunch() (*launch.Launch, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil launch record")
	}
	out := &launch.Launch{
		Authority:         s.Authority,
		Token:             s.Token,
		Pool:              s.Pool,
		TotalTokens:       s.TotalTokens,
		MaxAllocation:     s.MaxAllocation,
		TokensDistributed: s.TokensDistributed,
		Finalized:         s.Finalized,
		Settlement:        launch.SettlementMode(s.Settlement),
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return launch.SanitizeLaunch(out)
}

type storedBid struct {
	Bidder           [20]byte
	EncryptedPayload []byte
	EscrowAmount     *big.Int
	Allocation       *big.Int
	Processed        bool
	Claimed          bool
	CreatedAt        *big.Int
}

func newStoredBid(b *launch.Bid) *storedBid {
	if b == nil {
		return nil
	}
	clone := b.Clone()
	return &storedBid{
		Bidder:           clone.Bidder,
		EncryptedPayload: clone.EncryptedPayload,
		EscrowAmount:     clone.EscrowAmount,
		Allocation:       clone.Allocation,
		Processed:        clone.Processed,
		Claimed:          clone.Claimed,
		CreatedAt:        big.NewInt(clone.CreatedAt),
	}
}

func (s *storedBid) toBid() (*launch.Bid, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil bid record")
	}
	out := &launch.Bid{
		Bidder:           s.Bidder,
		EncryptedPayload: s.EncryptedPayload,
		EscrowAmount:     s.EscrowAmount,
		Allocation:       s.Allocation,
		Processed:        s.Processed,
		Claimed:          s.Claimed,
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return launch.SanitizeBid(out)
}

// LaunchPut persists the singleton launch record.
func (m *Manager) LaunchPut(l *launch.Launch) error {
	sanitized, err := launch.SanitizeLaunch(l)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredLaunch(sanitized))
	if err != nil {
		return err
	}
	m.put(launchStorageKey(), encoded)
	return nil
}

// LaunchGet loads the singleton launch record.
func (m *Manager) LaunchGet() (*launch.Launch, bool) {
	data, ok := m.get(launchStorageKey())
	if !ok {
		return nil, false
	}
	stored := new(storedLaunch)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toLaunch()
	if err != nil {
		return nil, false
	}
	return record, true
}

// BidPut persists a bid record, addressed deterministically by bidder so at
// most one bid can exist per bidder per launch.
func (m *Manager) BidPut(b *launch.Bid) error {
	sanitized, err := launch.SanitizeBid(b)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredBid(sanitized))
	if err != nil {
		return err
	}
	m.put(bidStorageKey(sanitized.Bidder), encoded)
	return nil
}

// BidGet loads the bid record owned by the given bidder.
func (m *Manager) BidGet(bidder [20]byte) (*launch.Bid, bool) {
	data, ok := m.get(bidStorageKey(bidder))
	if !ok {
		return nil, false
	}
	stored := new(storedBid)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toBid()
	if err != nil {
		return nil, false
	}
	return record, true
}
