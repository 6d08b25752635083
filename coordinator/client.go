package coordinator

import (
	"github.com/psyche-network/psyche/fixed"
	"github.com/psyche-network/psyche/types"
)

// Client is a participant's persistent record. earned/slashed accumulate
// across epochs; active is bumped to the current join-window generation
// whenever the client (re)joins.
type Client struct {
	Id      types.ClientId
	Earned  uint64
	Slashed uint64
	Active  uint64
}

// ClientsState holds the whitelist and the persistent client table shared
// across epochs, plus the join-window generation counter.
type ClientsState struct {
	Whitelist  *fixed.Vec[types.WalletKey]
	Clients    *fixed.Vec[Client]
	NextActive uint64
}

// NewClientsState creates an empty ClientsState with the given fixed
// capacities.
func NewClientsState(whitelistCap, clientsCap int) *ClientsState {
	return &ClientsState{
		Whitelist: fixed.NewVec[types.WalletKey](whitelistCap),
		Clients:   fixed.NewVec[Client](clientsCap),
	}
}

// BeginJoinWindow opens a new join generation: subsequent Join calls stamp
// clients with the new NextActive value, and any client that does not
// rejoin during this window silently falls out of ActiveClients. This is
// invoked by the kernel whenever the run (re)enters WaitingForMembers.
func (cs *ClientsState) BeginJoinWindow() {
	cs.NextActive++
}

func (cs *ClientsState) findByWallet(wallet types.WalletKey) (int, bool) {
	for i, c := range cs.Clients.Slice() {
		if c.Id.Wallet == wallet {
			return i, true
		}
	}
	return 0, false
}

// IsWhitelisted reports whether wallet may join. An empty whitelist means
// the run is open to any wallet.
func (cs *ClientsState) IsWhitelisted(wallet types.WalletKey) bool {
	if cs.Whitelist.Len() == 0 {
		return true
	}
	for _, w := range cs.Whitelist.Slice() {
		if w == wallet {
			return true
		}
	}
	return false
}

// Join admits id for the current join window, creating a new Client
// record on first contact or refreshing an existing one's P2P key and
// generation stamp. maxClients bounds the active client count a brand
// new record may bring the run to; it never blocks a rejoin by an
// already-tracked wallet.
func (cs *ClientsState) Join(id types.ClientId, maxClients uint64) (Client, error) {
	if !cs.IsWhitelisted(id.Wallet) {
		return Client{}, ErrNotWhitelisted
	}
	if i, ok := cs.findByWallet(id.Wallet); ok {
		c := cs.Clients.At(i)
		c.Id = id
		c.Active = cs.NextActive
		cs.Clients.Set(i, c)
		return c, nil
	}
	if uint64(len(cs.ActiveClients())) >= maxClients {
		return Client{}, ErrMaxClientsReached
	}
	c := Client{Id: id, Active: cs.NextActive}
	if err := cs.Clients.Push(c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// ActiveClients returns the clients stamped with the current join-window
// generation -- the membership of the run right now.
func (cs *ClientsState) ActiveClients() []types.ClientId {
	var out []types.ClientId
	for _, c := range cs.Clients.Slice() {
		if c.Active == cs.NextActive {
			out = append(out, c.Id)
		}
	}
	return out
}

// Credit increments wallet's earned counter.
func (cs *ClientsState) Credit(wallet types.WalletKey, amount uint64) {
	if i, ok := cs.findByWallet(wallet); ok {
		c := cs.Clients.At(i)
		c.Earned += amount
		cs.Clients.Set(i, c)
	}
}

// Slash increments wallet's slashed counter.
func (cs *ClientsState) Slash(wallet types.WalletKey, amount uint64) {
	if i, ok := cs.findByWallet(wallet); ok {
		c := cs.Clients.At(i)
		c.Slashed += amount
		cs.Clients.Set(i, c)
	}
}
