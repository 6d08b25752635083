package p2p

import (
	"sync"

	"github.com/psyche-network/psyche/types"
)

// Allowlist gates which P2P session identities may connect to the
// fabric, repopulated from the current epoch's client set.
type Allowlist struct {
	mu      sync.RWMutex
	allowed map[types.P2PKey]types.WalletKey
}

// NewAllowlist creates an empty Allowlist.
func NewAllowlist() *Allowlist {
	return &Allowlist{allowed: make(map[types.P2PKey]types.WalletKey)}
}

// Update replaces the allowlist wholesale with the given client set,
// invoked whenever the frozen epoch client set changes.
func (a *Allowlist) Update(clients []types.ClientId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := make(map[types.P2PKey]types.WalletKey, len(clients))
	for _, c := range clients {
		m[c.P2P] = c.Wallet
	}
	a.allowed = m
}

// Allowed reports whether p2pKey may connect, and the wallet it maps to.
func (a *Allowlist) Allowed(p2pKey types.P2PKey) (types.WalletKey, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	wallet, ok := a.allowed[p2pKey]
	return wallet, ok
}

// Len reports how many identities are currently allowed.
func (a *Allowlist) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.allowed)
}
