// Package committee computes, from a frozen client set and a round seed,
// the two ordered rosters (committee and witness) a round depends on:
// Merkle-committed orderings used to classify clients into
// TieBreaker/Verifier/Trainer roles and to determine witness eligibility.
//
// Selection is pure: New performs no I/O and is a
// total function of its arguments, so the centralized host and every
// client computing the same (clients, seed) arrive at identical roots.
package committee

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// Role classifies a client's task within a round's committee.
type Role int

const (
	RoleTieBreaker Role = iota
	RoleVerifier
	RoleTrainer
)

func (r Role) String() string {
	switch r {
	case RoleTieBreaker:
		return "TieBreaker"
	case RoleVerifier:
		return "Verifier"
	case RoleTrainer:
		return "Trainer"
	default:
		return "Unknown"
	}
}

const (
	saltCommittee = "committee"
	saltWitness   = "witness"
)

// ErrNoClients is returned when Selection is asked to operate on an empty
// client set.
var ErrNoClients = errors.New("committee: client set is empty")

// ErrClientNotFound is returned when a proof or role is requested for a
// client that is not part of the selection.
var ErrClientNotFound = errors.New("committee: client not in selection")

// roster is one of the two independently-seeded orderings.
type roster struct {
	order []types.ClientId
	index map[types.ClientId]int // wallet key -> position in order
	tree  *crypto.MerkleTree
}

// Selection is the derived (never stored) committee/witness roster pair
// for a frozen client set and seed.
type Selection struct {
	clients []types.ClientId
	seed    uint64

	committee roster
	witness   roster

	tieBreakerNodes int
	verifierNodes   int
	trainerNodes    int
	witnessNodes    int
}

func seedBytes(seed uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	return b[:]
}

func indexBytes(i int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	return b[:]
}

func rank(salt string, seed uint64, id types.ClientId) uint64 {
	h := crypto.Sha256v([]byte(salt), seedBytes(seed), id.Bytes())
	return binary.BigEndian.Uint64(h[:8])
}

func leaf(salt string, seed uint64, id types.ClientId, position int) crypto.Hash {
	return crypto.Sha256v([]byte(salt), seedBytes(seed), id.Bytes(), indexBytes(position))
}

func buildRoster(salt string, seed uint64, clients []types.ClientId) (roster, error) {
	type ranked struct {
		id       types.ClientId
		rank     uint64
		original int
	}
	rs := make([]ranked, len(clients))
	for i, c := range clients {
		rs[i] = ranked{id: c, rank: rank(salt, seed, c), original: i}
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].rank != rs[j].rank {
			return rs[i].rank < rs[j].rank
		}
		return rs[i].original < rs[j].original
	})

	order := make([]types.ClientId, len(rs))
	leaves := make([]crypto.Hash, len(rs))
	index := make(map[types.ClientId]int, len(rs))
	for i, r := range rs {
		order[i] = r.id
		leaves[i] = leaf(salt, seed, r.id, i)
		index[types.ClientId{Wallet: r.id.Wallet}] = i
	}
	tree, err := crypto.NewMerkleTree(leaves)
	if err != nil {
		return roster{}, err
	}
	return roster{order: order, index: index, tree: tree}, nil
}

// New computes the CommitteeSelection for clients under seed. tieBreakerNodes
// is the configured number of tie-breaker slots; witnessNodes is the
// configured number of witness-eligible slots; verificationPercent (0..=100)
// determines the verifier count among the remaining clients.
func New(tieBreakerNodes, witnessNodes, verificationPercent int, clients []types.ClientId, seed uint64) (*Selection, error) {
	if len(clients) == 0 {
		return nil, ErrNoClients
	}
	committeeRoster, err := buildRoster(saltCommittee, seed, clients)
	if err != nil {
		return nil, err
	}
	witnessRoster, err := buildRoster(saltWitness, seed, clients)
	if err != nil {
		return nil, err
	}

	n := len(clients)
	tb := tieBreakerNodes
	if tb > n {
		tb = n
	}
	verifierNodes := ((n - tb) * verificationPercent) / 100
	trainerNodes := n - tb - verifierNodes

	wn := witnessNodes
	if wn > n {
		wn = n
	}

	return &Selection{
		clients:         clients,
		seed:            seed,
		committee:       committeeRoster,
		witness:         witnessRoster,
		tieBreakerNodes: tb,
		verifierNodes:   verifierNodes,
		trainerNodes:    trainerNodes,
		witnessNodes:    wn,
	}, nil
}

// CommitteeRoot returns the Merkle root of the committee ordering.
func (s *Selection) CommitteeRoot() crypto.Hash { return s.committee.tree.Root() }

// WitnessRoot returns the Merkle root of the witness ordering.
func (s *Selection) WitnessRoot() crypto.Hash { return s.witness.tree.Root() }

// CommitteeOrder returns the committee ordering, tie-breakers first, then
// verifiers, then trainers.
func (s *Selection) CommitteeOrder() []types.ClientId { return s.committee.order }

// WitnessOrder returns the witness ordering; the first WitnessNodes()
// entries are witness-eligible.
func (s *Selection) WitnessOrder() []types.ClientId { return s.witness.order }

// Counts returns (tieBreaker, verifier, trainer) counts, which sum to the
// client count.
func (s *Selection) Counts() (tieBreaker, verifier, trainer int) {
	return s.tieBreakerNodes, s.verifierNodes, s.trainerNodes
}

// WitnessNodes returns the witness-eligible count: the configured count,
// capped at the number of clients.
func (s *Selection) WitnessNodes() int { return s.witnessNodes }

// RoleOf classifies id's committee position.
func (s *Selection) RoleOf(id types.ClientId) (Role, error) {
	pos, ok := s.committee.index[types.ClientId{Wallet: id.Wallet}]
	if !ok {
		return 0, ErrClientNotFound
	}
	switch {
	case pos < s.tieBreakerNodes:
		return RoleTieBreaker, nil
	case pos < s.tieBreakerNodes+s.verifierNodes:
		return RoleVerifier, nil
	default:
		return RoleTrainer, nil
	}
}

// CommitteePosition returns id's position in the committee ordering.
func (s *Selection) CommitteePosition(id types.ClientId) (int, error) {
	pos, ok := s.committee.index[types.ClientId{Wallet: id.Wallet}]
	if !ok {
		return 0, ErrClientNotFound
	}
	return pos, nil
}

// IsWitnessEligible reports whether id is among the first WitnessNodes()
// entries of the witness ordering, and its position if so.
func (s *Selection) IsWitnessEligible(id types.ClientId) (position int, eligible bool) {
	pos, ok := s.witness.index[types.ClientId{Wallet: id.Wallet}]
	if !ok {
		return 0, false
	}
	if pos >= s.witnessNodes {
		return pos, false
	}
	return pos, true
}

// CommitteeProofFor builds id's proof of committee-ordering membership.
func (s *Selection) CommitteeProofFor(id types.ClientId) (Proof, error) {
	pos, ok := s.committee.index[types.ClientId{Wallet: id.Wallet}]
	if !ok {
		return Proof{}, ErrClientNotFound
	}
	mp, err := s.committee.tree.FindPath(pos)
	if err != nil {
		return Proof{}, err
	}
	return Proof{ClientId: id, MerkleProof: mp}, nil
}

// WitnessProofFor builds id's proof of witness-ordering membership.
func (s *Selection) WitnessProofFor(id types.ClientId) (Proof, error) {
	pos, ok := s.witness.index[types.ClientId{Wallet: id.Wallet}]
	if !ok {
		return Proof{}, ErrClientNotFound
	}
	mp, err := s.witness.tree.FindPath(pos)
	if err != nil {
		return Proof{}, err
	}
	return Proof{ClientId: id, MerkleProof: mp}, nil
}
