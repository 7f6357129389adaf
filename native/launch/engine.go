package launch

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"obsidian/core/events"
)

var errNilState = errors.New("launch engine: state not configured")

// engineState is the narrow view of ledger state the engine mutates. The
// Transfer method is the escrow transfer primitive: an atomic, all-or-nothing
// move of `amount` units of `token` checked against the declared decimal
// precision.
type engineState interface {
	LaunchGet() (*Launch, bool)
	LaunchPut(*Launch) error
	BidGet(bidder [20]byte) (*Bid, bool)
	BidPut(*Bid) error
	TokenDecimals(token string) (uint8, error)
	Transfer(from, to [20]byte, token string, amount *big.Int, decimals uint8) error
}

// Engine wires the launch settlement logic with external state and event
// emitters. It assumes the host executes each operation as an atomic,
// serialized transaction: either every write an operation performs is
// committed, or none are.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a launch engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadLaunch() (*Launch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	l, ok := e.state.LaunchGet()
	if !ok {
		return nil, ErrLaunchNotFound
	}
	return l, nil
}

// InitializeLaunch creates the singleton launch owned by the calling
// authority, pointing at the derived pool address for the declared token.
// Exactly one launch can exist per domain tag.
func (e *Engine) InitializeLaunch(authority [20]byte, token string, totalTokens, maxAllocation *big.Int) (*Launch, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if _, err := e.state.TokenDecimals(normalized); err != nil {
		return nil, ErrInvalidToken
	}
	total := cloneOrZero(totalTokens)
	if total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	maxAlloc := cloneOrZero(maxAllocation)
	if maxAlloc.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if _, ok := e.state.LaunchGet(); ok {
		return nil, ErrLaunchExists
	}
	l := &Launch{
		Authority:         authority,
		Token:             normalized,
		Pool:              PoolAddress(),
		TotalTokens:       total,
		MaxAllocation:     maxAlloc,
		TokensDistributed: big.NewInt(0),
		Finalized:         false,
		Settlement:        SettlementUnset,
		CreatedAt:         e.now(),
	}
	if err := e.state.LaunchPut(l); err != nil {
		return nil, err
	}
	e.emit(events.LaunchCreated{
		Authority:     l.Authority,
		Token:         l.Token,
		Pool:          l.Pool,
		TotalTokens:   l.TotalTokens,
		MaxAllocation: l.MaxAllocation,
		CreatedAt:     l.CreatedAt,
	})
	return l.Clone(), nil
}

// SubmitBid escrows the bidder's payment into the pool and records their
// encrypted bid. The transfer and the record creation commit together; a
// failed transfer leaves no bid behind.
func (e *Engine) SubmitBid(bidder [20]byte, encryptedPayload []byte, amount *big.Int) (*Bid, error) {
	l, err := e.loadLaunch()
	if err != nil {
		return nil, err
	}
	if l.Finalized {
		return nil, ErrLaunchFinalized
	}
	if len(encryptedPayload) > MaxEncryptedBidSize {
		return nil, ErrPayloadTooLarge
	}
	amt := cloneOrZero(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, ok := e.state.BidGet(bidder); ok {
		return nil, ErrBidExists
	}
	decimals, err := e.state.TokenDecimals(l.Token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := e.state.Transfer(bidder, l.Pool, l.Token, amt, decimals); err != nil {
		return nil, err
	}
	b := &Bid{
		Bidder:           bidder,
		EncryptedPayload: append([]byte(nil), encryptedPayload...),
		EscrowAmount:     amt,
		Allocation:       big.NewInt(0),
		Processed:        false,
		Claimed:          false,
		CreatedAt:        e.now(),
	}
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	e.emit(events.BidSubmitted{Bidder: bidder, Amount: amt, PayloadSize: len(b.EncryptedPayload)})
	return b.Clone(), nil
}

// StartAllocation signals the off-chain allocator that sealed bids are ready
// for processing. It performs no state mutation beyond the emitted event.
func (e *Engine) StartAllocation() error {
	if _, err := e.loadLaunch(); err != nil {
		return err
	}
	e.emit(events.AllocationStarted{Timestamp: e.now()})
	return nil
}

// RecordAllocation writes the allocator's decision for one bid. Only the
// launch authority may call it and only before finalization. The engine trusts
// the authority signer entirely; no proof of the allocation's correctness is
// verified here.
func (e *Engine) RecordAllocation(caller, bidder [20]byte, amount *big.Int) (*Bid, error) {
	l, err := e.loadLaunch()
	if err != nil {
		return nil, err
	}
	if caller != l.Authority {
		return nil, ErrUnauthorized
	}
	if l.Finalized {
		return nil, ErrLaunchFinalized
	}
	amt := cloneOrZero(amount)
	if amt.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	b, ok := e.state.BidGet(bidder)
	if !ok {
		return nil, ErrBidNotFound
	}
	// MaxAllocation is intentionally not checked against amt; the cap is
	// recorded configuration only. See DESIGN.md.
	b.Allocation = amt
	b.Processed = true
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	e.emit(events.AllocationRecorded{Bidder: bidder, Amount: amt})
	return b.Clone(), nil
}

// FinalizeLaunch flips the one-way finalization gate and commits the launch to
// pull-based settlement: bidders claim their own recorded allocations. No
// token movement happens here. The proof bytes may be empty; only their digest
// is recorded in the emitted event.
func (e *Engine) FinalizeLaunch(caller [20]byte, proof []byte) error {
	l, err := e.loadLaunch()
	if err != nil {
		return err
	}
	if caller != l.Authority {
		return ErrUnauthorized
	}
	if l.Finalized {
		return ErrAlreadyFinalized
	}
	l.Finalized = true
	l.Settlement = SettlementClaim
	if err := e.state.LaunchPut(l); err != nil {
		return err
	}
	e.emit(events.LaunchFinalized{
		ProofHash:         proofDigest(proof),
		Settlement:        l.Settlement.String(),
		TokensDistributed: l.TokensDistributed,
	})
	return nil
}

// FinalizeAndDistribute pushes the full batch of payouts from the pool and
// finalizes the launch in one transaction, committing it to push-based
// settlement. Transfers are signed by the launch's derived pool authority,
// not the human authority. Any single failure aborts the whole batch.
func (e *Engine) FinalizeAndDistribute(caller [20]byte, proof []byte, recipients [][20]byte, amounts []*big.Int) error {
	l, err := e.loadLaunch()
	if err != nil {
		return err
	}
	if caller != l.Authority {
		return ErrUnauthorized
	}
	if l.Finalized {
		return ErrLaunchFinalized
	}
	if len(recipients) != len(amounts) {
		return ErrInvalidAllocationInput
	}
	decimals, err := e.state.TokenDecimals(l.Token)
	if err != nil {
		return ErrInvalidToken
	}
	distributed := cloneOrZero(l.TokensDistributed)
	for i, recipient := range recipients {
		if recipient == ([20]byte{}) {
			return ErrInvalidAllocationInput
		}
		amt := amounts[i]
		if amt == nil || amt.Sign() <= 0 {
			return ErrInvalidAllocationInput
		}
		distributed = new(big.Int).Add(distributed, amt)
		if distributed.Cmp(l.TotalTokens) > 0 {
			return ErrSupplyExceeded
		}
		if err := e.state.Transfer(l.Pool, recipient, l.Token, amt, decimals); err != nil {
			return err
		}
	}
	l.TokensDistributed = distributed
	l.Finalized = true
	l.Settlement = SettlementDistribute
	if err := e.state.LaunchPut(l); err != nil {
		return err
	}
	e.emit(events.LaunchFinalized{
		ProofHash:         proofDigest(proof),
		Settlement:        l.Settlement.String(),
		TokensDistributed: l.TokensDistributed,
	})
	return nil
}

// ClaimTokens pays out the caller's own recorded allocation exactly once.
// The claimed flag, the running distribution total and the transfer commit as
// one atomic step, so a bid can never be paid twice and a failed transfer
// never marks the bid claimed.
func (e *Engine) ClaimTokens(bidder [20]byte) (*Bid, error) {
	l, err := e.loadLaunch()
	if err != nil {
		return nil, err
	}
	if !l.Finalized {
		return nil, ErrNotFinalized
	}
	if l.Settlement == SettlementDistribute {
		return nil, ErrClaimsDisabled
	}
	b, ok := e.state.BidGet(bidder)
	if !ok {
		return nil, ErrBidNotFound
	}
	if b.Allocation == nil || b.Allocation.Sign() == 0 {
		return nil, ErrNoAllocation
	}
	if b.Claimed {
		return nil, ErrAlreadyClaimed
	}
	distributed := new(big.Int).Add(l.TokensDistributed, b.Allocation)
	if distributed.Cmp(l.TotalTokens) > 0 {
		return nil, ErrSupplyExceeded
	}
	decimals, err := e.state.TokenDecimals(l.Token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := e.state.Transfer(l.Pool, bidder, l.Token, b.Allocation, decimals); err != nil {
		return nil, err
	}
	b.Claimed = true
	if err := e.state.BidPut(b); err != nil {
		return nil, err
	}
	l.TokensDistributed = distributed
	if err := e.state.LaunchPut(l); err != nil {
		return nil, err
	}
	e.emit(events.TokensClaimed{Bidder: bidder, Amount: b.Allocation})
	return b.Clone(), nil
}

func proofDigest(proof []byte) [32]byte {
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(proof))
	return digest
}
