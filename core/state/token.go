package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"obsidian/native/launch"
)

var (
	ErrTokenNotFound       = errors.New("state: token not registered")
	ErrTokenExists         = errors.New("state: token already registered")
	ErrDecimalMismatch     = errors.New("state: declared decimals do not match token")
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	ErrInvalidAmount       = errors.New("state: amount must be non-negative")
	ErrMintUnauthorized    = errors.New("state: caller is not the mint authority")
)

// TokenMetadata describes a token the ledger can escrow and distribute. The
// decimal precision is checked on every transfer, mirroring transfer-checked
// semantics: a caller declaring the wrong precision is refused outright.
type TokenMetadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority [20]byte
}

func tokenMetadataKey(symbol string) []byte {
	return hashKey(tokenPrefix, []byte(symbol))
}

func balanceKey(addr [20]byte, symbol string) []byte {
	buf := make([]byte, len(symbol)+1+len(addr))
	copy(buf, symbol)
	buf[len(symbol)] = '/'
	copy(buf[len(symbol)+1:], addr[:])
	return hashKey(balancePrefix, buf)
}

// RegisterToken stores the metadata for a token. Registration happens once at
// genesis; re-registering an existing symbol fails.
func (m *Manager) RegisterToken(meta *TokenMetadata) error {
	if meta == nil {
		return fmt.Errorf("state: nil token metadata")
	}
	symbol, err := launch.NormalizeToken(meta.Symbol)
	if err != nil {
		return err
	}
	key := tokenMetadataKey(symbol)
	if _, ok := m.get(key); ok {
		return ErrTokenExists
	}
	record := &TokenMetadata{
		Symbol:        symbol,
		Name:          meta.Name,
		Decimals:      meta.Decimals,
		MintAuthority: meta.MintAuthority,
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

// Token returns the registered metadata for a symbol.
func (m *Manager) Token(symbol string) (*TokenMetadata, bool) {
	normalized, err := launch.NormalizeToken(symbol)
	if err != nil {
		return nil, false
	}
	data, ok := m.get(tokenMetadataKey(normalized))
	if !ok {
		return nil, false
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false
	}
	return meta, true
}

// TokenDecimals returns the registered decimal precision for a symbol.
func (m *Manager) TokenDecimals(symbol string) (uint8, error) {
	meta, ok := m.Token(symbol)
	if !ok {
		return 0, ErrTokenNotFound
	}
	return meta.Decimals, nil
}

// BalanceOf returns the token balance held by an address.
func (m *Manager) BalanceOf(addr [20]byte, symbol string) (*big.Int, error) {
	normalized, err := launch.NormalizeToken(symbol)
	if err != nil {
		return nil, err
	}
	if _, ok := m.Token(normalized); !ok {
		return nil, ErrTokenNotFound
	}
	return m.loadBigInt(balanceKey(addr, normalized))
}

func (m *Manager) setBalance(addr [20]byte, symbol string, v *big.Int) {
	m.writeBigInt(balanceKey(addr, symbol), v)
}

// Mint credits freshly created tokens to an account. Only the token's
// registered mint authority may invoke it; it is how the reward supply reaches
// the pool and how test environments fund bidders.
func (m *Manager) Mint(caller, to [20]byte, symbol string, amount *big.Int) error {
	normalized, err := launch.NormalizeToken(symbol)
	if err != nil {
		return err
	}
	meta, ok := m.Token(normalized)
	if !ok {
		return ErrTokenNotFound
	}
	if caller != meta.MintAuthority {
		return ErrMintUnauthorized
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	current, err := m.BalanceOf(to, normalized)
	if err != nil {
		return err
	}
	m.setBalance(to, normalized, new(big.Int).Add(current, amount))
	return nil
}

// Transfer moves tokens between two accounts, checked against the declared
// decimal precision. It either applies both balance updates or neither.
func (m *Manager) Transfer(from, to [20]byte, symbol string, amount *big.Int, decimals uint8) error {
	normalized, err := launch.NormalizeToken(symbol)
	if err != nil {
		return err
	}
	meta, ok := m.Token(normalized)
	if !ok {
		return ErrTokenNotFound
	}
	if meta.Decimals != decimals {
		return ErrDecimalMismatch
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.BalanceOf(to, normalized)
	if err != nil {
		return err
	}
	m.setBalance(from, normalized, new(big.Int).Sub(fromBalance, amount))
	m.setBalance(to, normalized, new(big.Int).Add(toBalance, amount))
	return nil
}
