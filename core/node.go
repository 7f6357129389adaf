package core

import (
	"log/slog"
	"math/big"
	"sync"

	"obsidian/core/events"
	"obsidian/core/state"
	"obsidian/core/types"
	"obsidian/crypto"
	"obsidian/native/launch"
	"obsidian/observability"
)

// maxEventBacklog bounds the in-memory event log served over RPC. Older events
// are dropped once the backlog is full; durable history belongs to indexers.
const maxEventBacklog = 1024

// Node hosts the launch settlement engine on top of persistent ledger state.
// Every operation runs as a serialized transaction: the node takes its lock,
// invokes the engine against the state overlay, and either commits the whole
// write set or discards it when the operation fails.
type Node struct {
	mu     sync.Mutex
	state  *state.Manager
	engine *launch.Engine
	logger *slog.Logger

	events  []types.Event
	pending []types.Event
	metrics *observability.LaunchdMetrics
}

// NewNode wires a node around the given state manager.
func NewNode(manager *state.Manager, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		state:   manager,
		engine:  launch.NewEngine(),
		logger:  logger,
		metrics: observability.LaunchMetrics(),
	}
	n.engine.SetState(manager)
	n.engine.SetEmitter(&nodeEmitter{node: n})
	return n
}

// SetNowFunc overrides the engine's clock. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.engine.SetNowFunc(now)
}

// nodeEmitter stages engine events for the operation in flight. It is only
// ever invoked while the node holds its own lock, so it must not lock again.
// Staged events reach the backlog only when the operation commits.
type nodeEmitter struct {
	node *Node
}

func (e *nodeEmitter) Emit(event events.Event) {
	if e == nil || e.node == nil || event == nil {
		return
	}
	payloadEvent, ok := event.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	evt := payloadEvent.Event()
	if evt == nil {
		return
	}
	e.node.pending = append(e.node.pending, *evt)
}

// run executes one engine operation transactionally. On success the buffered
// writes reach the database and the staged events reach the backlog; on
// failure both are discarded.
func (n *Node) run(operation string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.pending = n.pending[:0]
	err := fn()
	if err == nil {
		err = n.state.Commit()
	}
	if err != nil {
		n.state.Discard()
	} else {
		for _, evt := range n.pending {
			n.events = append(n.events, evt)
			n.metrics.ObserveEvent(evt.Type)
			n.logger.Info("event emitted", "type", evt.Type)
		}
		if len(n.events) > maxEventBacklog {
			n.events = n.events[len(n.events)-maxEventBacklog:]
		}
	}
	n.pending = n.pending[:0]
	n.metrics.ObserveOperation(operation, err)
	if err != nil {
		n.logger.Warn("operation failed", "operation", operation, "error", err)
	}
	return err
}

func (n *Node) publishDistributed() {
	if l, ok := n.state.LaunchGet(); ok && l.TokensDistributed != nil {
		v, _ := new(big.Float).SetInt(l.TokensDistributed).Float64()
		n.metrics.SetTokensDistributed(v)
	}
}

// InitializeLaunch creates the singleton launch record.
func (n *Node) InitializeLaunch(authority [20]byte, token string, totalTokens, maxAllocation *big.Int) (*launch.Launch, error) {
	var created *launch.Launch
	err := n.run("initialize", func() error {
		l, err := n.engine.InitializeLaunch(authority, token, totalTokens, maxAllocation)
		if err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("launch initialized",
		"authority", crypto.NewAddress(crypto.ObsidianPrefix, authority[:]).String(),
		"token", created.Token,
		"totalTokens", created.TotalTokens.String())
	return created, nil
}

// SubmitBid escrows the bidder's payment and stores their sealed bid.
func (n *Node) SubmitBid(bidder [20]byte, encryptedPayload []byte, amount *big.Int) (*launch.Bid, error) {
	var bid *launch.Bid
	err := n.run("submit_bid", func() error {
		b, err := n.engine.SubmitBid(bidder, encryptedPayload, amount)
		if err != nil {
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// StartAllocation signals the allocator that sealed bids are ready.
func (n *Node) StartAllocation() error {
	return n.run("start_allocation", func() error {
		return n.engine.StartAllocation()
	})
}

// RecordAllocation writes the allocator's decision for one bid.
func (n *Node) RecordAllocation(caller, bidder [20]byte, amount *big.Int) (*launch.Bid, error) {
	var bid *launch.Bid
	err := n.run("record_allocation", func() error {
		b, err := n.engine.RecordAllocation(caller, bidder, amount)
		if err != nil {
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// FinalizeLaunch seals the launch for pull-based claims.
func (n *Node) FinalizeLaunch(caller [20]byte, proof []byte) error {
	err := n.run("finalize", func() error {
		return n.engine.FinalizeLaunch(caller, proof)
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.publishDistributed()
	n.mu.Unlock()
	return nil
}

// FinalizeAndDistribute pushes the full payout batch and seals the launch.
func (n *Node) FinalizeAndDistribute(caller [20]byte, proof []byte, recipients [][20]byte, amounts []*big.Int) error {
	err := n.run("finalize_distribute", func() error {
		return n.engine.FinalizeAndDistribute(caller, proof, recipients, amounts)
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.publishDistributed()
	n.mu.Unlock()
	return nil
}

// ClaimTokens pays out the caller's recorded allocation.
func (n *Node) ClaimTokens(bidder [20]byte) (*launch.Bid, error) {
	var bid *launch.Bid
	err := n.run("claim", func() error {
		b, err := n.engine.ClaimTokens(bidder)
		if err != nil {
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.publishDistributed()
	n.mu.Unlock()
	return bid, nil
}

// RegisterToken registers a token at genesis time.
func (n *Node) RegisterToken(meta *state.TokenMetadata) error {
	return n.run("register_token", func() error {
		return n.state.RegisterToken(meta)
	})
}

// Mint credits tokens to an account on behalf of the mint authority.
func (n *Node) Mint(caller, to [20]byte, token string, amount *big.Int) error {
	return n.run("mint", func() error {
		return n.state.Mint(caller, to, token, amount)
	})
}

// Launch returns the current launch record, if one exists.
func (n *Node) Launch() (*launch.Launch, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.LaunchGet()
}

// Bid returns the bid record owned by the given bidder, if one exists.
func (n *Node) Bid(bidder [20]byte) (*launch.Bid, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.BidGet(bidder)
}

// BalanceOf returns the token balance held by an address.
func (n *Node) BalanceOf(addr [20]byte, token string) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.BalanceOf(addr, token)
}

// Events returns up to limit of the most recent events, newest last. A limit
// of zero or less returns the full backlog.
func (n *Node) Events(limit int) []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 || limit > len(n.events) {
		limit = len(n.events)
	}
	out := make([]types.Event, limit)
	copy(out, n.events[len(n.events)-limit:])
	return out
}
