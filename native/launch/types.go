package launch

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// LaunchTag is the domain-separation tag under which the singleton launch
// record and its derived pool address live. One tag, one auction.
const LaunchTag = "launch"

// MaxEncryptedBidSize bounds the opaque encrypted bid payload. The engine
// stores the bytes verbatim and never interprets them.
const MaxEncryptedBidSize = 200

// SettlementMode records which payout path a launch committed to at finalize
// time. The push (distribute) and pull (claim) paths settle against the same
// pooled funds, so a launch must pick exactly one.
type SettlementMode uint8

const (
	SettlementUnset SettlementMode = iota
	SettlementClaim
	SettlementDistribute
)

// Valid reports whether the mode value is within the supported range.
func (m SettlementMode) Valid() bool {
	switch m {
	case SettlementUnset, SettlementClaim, SettlementDistribute:
		return true
	default:
		return false
	}
}

func (m SettlementMode) String() string {
	switch m {
	case SettlementUnset:
		return "unset"
	case SettlementClaim:
		return "claim"
	case SettlementDistribute:
		return "distribute"
	default:
		return "unknown"
	}
}

var (
	ErrLaunchExists           = errors.New("launch: already initialized")
	ErrLaunchNotFound         = errors.New("launch: not found")
	ErrBidExists              = errors.New("launch: bid already exists for bidder")
	ErrBidNotFound            = errors.New("launch: bid not found")
	ErrUnauthorized           = errors.New("launch: unauthorized")
	ErrLaunchFinalized        = errors.New("launch: already finalized")
	ErrAlreadyFinalized       = errors.New("launch: finalize already executed")
	ErrNotFinalized           = errors.New("launch: not finalized")
	ErrNoAllocation           = errors.New("launch: no allocation recorded")
	ErrAlreadyClaimed         = errors.New("launch: allocation already claimed")
	ErrClaimsDisabled         = errors.New("launch: claims disabled by push settlement")
	ErrInvalidAllocationInput = errors.New("launch: invalid allocation input")
	ErrSupplyExceeded         = errors.New("launch: distribution exceeds total supply")
	ErrPayloadTooLarge        = errors.New("launch: encrypted payload too large")
	ErrInvalidAmount          = errors.New("launch: amount must be positive")
	ErrInvalidToken           = errors.New("launch: invalid token")
)

// Launch is the singleton record describing one token auction's configuration
// and lifecycle state. The authority is fixed at creation; TokensDistributed
// only ever grows and Finalized only ever flips false to true.
type Launch struct {
	Authority [20]byte
	Token     string
	Pool      [20]byte
	// TotalTokens is the total reward supply available to distribute.
	TotalTokens *big.Int
	// MaxAllocation is the declared per-bid cap. It is stored for audit but
	// deliberately not checked on the settlement paths; see DESIGN.md.
	MaxAllocation     *big.Int
	TokensDistributed *big.Int
	Finalized         bool
	Settlement        SettlementMode
	CreatedAt         int64
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (l *Launch) Clone() *Launch {
	if l == nil {
		return nil
	}
	clone := *l
	clone.TotalTokens = cloneOrZero(l.TotalTokens)
	clone.MaxAllocation = cloneOrZero(l.MaxAllocation)
	clone.TokensDistributed = cloneOrZero(l.TokensDistributed)
	return &clone
}

// Bid is a bidder's escrowed commitment plus their eventually recorded
// allocation and claim status. One bid per bidder per launch.
type Bid struct {
	Bidder [20]byte
	// EncryptedPayload is opaque to the engine; decryption belongs to the
	// off-chain allocator.
	EncryptedPayload []byte
	// EscrowAmount is the payment-token amount moved into the pool when the
	// bid was admitted.
	EscrowAmount *big.Int
	Allocation   *big.Int
	Processed    bool
	Claimed      bool
	CreatedAt    int64
}

// Clone returns a deep copy of the bid record.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.EncryptedPayload = append([]byte(nil), b.EncryptedPayload...)
	clone.EscrowAmount = cloneOrZero(b.EscrowAmount)
	clone.Allocation = cloneOrZero(b.Allocation)
	return &clone
}

// NormalizeToken canonicalises a token symbol to its uppercase form.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	return trimmed, nil
}

// SanitizeLaunch validates and normalises a launch record, returning a cloned
// instance with canonical token casing and non-nil amounts. The function does
// not mutate the original value.
func SanitizeLaunch(l *Launch) (*Launch, error) {
	if l == nil {
		return nil, fmt.Errorf("nil launch")
	}
	clone := l.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.TotalTokens.Sign() < 0 || clone.MaxAllocation.Sign() < 0 || clone.TokensDistributed.Sign() < 0 {
		return nil, fmt.Errorf("launch amounts must be non-negative")
	}
	if clone.TokensDistributed.Cmp(clone.TotalTokens) > 0 {
		return nil, fmt.Errorf("tokens distributed exceed total supply")
	}
	if !clone.Settlement.Valid() {
		return nil, fmt.Errorf("invalid settlement mode: %d", clone.Settlement)
	}
	if clone.Finalized && clone.Settlement == SettlementUnset {
		return nil, fmt.Errorf("finalized launch missing settlement mode")
	}
	return clone, nil
}

// SanitizeBid validates a bid record, returning a cloned instance with
// non-nil amounts.
func SanitizeBid(b *Bid) (*Bid, error) {
	if b == nil {
		return nil, fmt.Errorf("nil bid")
	}
	clone := b.Clone()
	if len(clone.EncryptedPayload) > MaxEncryptedBidSize {
		return nil, ErrPayloadTooLarge
	}
	if clone.EscrowAmount.Sign() < 0 || clone.Allocation.Sign() < 0 {
		return nil, fmt.Errorf("bid amounts must be non-negative")
	}
	if clone.Claimed && clone.Allocation.Sign() == 0 {
		return nil, fmt.Errorf("claimed bid missing allocation")
	}
	return clone, nil
}

// PoolAddress derives the escrow pool account controlled by the launch record
// itself rather than the human authority. No private key exists for the
// derived address, so pool funds only move through engine operations.
func PoolAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(LaunchTag + "/pool"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
