package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// ErrTokenNotFound is returned when no token is registered at an address.
var ErrTokenNotFound = errors.New("token not found")

var _ outbound.TokenRegistry = (*TokenRegistry)(nil)

// TokenRegistry resolves token addresses to in-memory tokens.
type TokenRegistry struct {
	mu     sync.RWMutex
	tokens map[common.Address]outbound.ERC20
}

// NewTokenRegistry creates an empty registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[common.Address]outbound.ERC20)}
}

// Register binds token to addr, replacing any previous binding.
func (r *TokenRegistry) Register(addr common.Address, token outbound.ERC20) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[addr] = token
}

// Token returns the token registered at addr.
func (r *TokenRegistry) Token(addr common.Address) (outbound.ERC20, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, addr.Hex())
	}
	return token, nil
}
