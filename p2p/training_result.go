package p2p

import (
	"encoding/binary"
	"errors"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// TrainingResult is the client->peers broadcast announcing one trained
// batch: a step and batch identity, the Commitment over the published
// gradient blob, the BlobTicket locating it, and a CommitteeProof of the
// signer's position so verifiers can check it against the round's
// committee Merkle root without holding the full client set.
type TrainingResult struct {
	Step       uint32
	BatchId    types.BatchId
	Commitment types.Commitment
	Ticket     BlobTicket
	Proof      committee.CommitteeProof
}

// Marshal flattens TrainingResult as step(4) || batch_id(16) ||
// commitment.data_hash(32) || commitment.signature(64) || len(ticket)(4) ||
// ticket || proof.
func (t TrainingResult) Marshal() []byte {
	ticket := t.Ticket.Marshal()
	proof := t.Proof.Marshal()
	out := make([]byte, 0, 4+16+32+64+4+len(ticket)+len(proof))
	out = binary.BigEndian.AppendUint32(out, t.Step)
	out = append(out, t.BatchId.Bytes()...)
	out = append(out, t.Commitment.DataHash[:]...)
	out = append(out, t.Commitment.Signature[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(ticket)))
	out = append(out, ticket...)
	out = append(out, proof...)
	return out
}

// ErrMalformedTrainingResult is returned when a marshaled TrainingResult is
// truncated relative to its declared field lengths.
var ErrMalformedTrainingResult = errors.New("p2p: malformed training result")

// UnmarshalTrainingResult is the inverse of TrainingResult.Marshal.
func UnmarshalTrainingResult(b []byte) (TrainingResult, error) {
	if len(b) < 4+16+32+64+4 {
		return TrainingResult{}, ErrMalformedTrainingResult
	}
	var t TrainingResult
	t.Step = binary.BigEndian.Uint32(b[0:4])
	t.BatchId = types.BatchId{
		Start: binary.BigEndian.Uint64(b[4:12]),
		End:   binary.BigEndian.Uint64(b[12:20]),
	}
	copy(t.Commitment.DataHash[:], b[20:52])
	copy(t.Commitment.Signature[:], b[52:116])
	ticketLen := binary.BigEndian.Uint32(b[116:120])
	rest := b[120:]
	if uint32(len(rest)) < ticketLen {
		return TrainingResult{}, ErrMalformedTrainingResult
	}
	ticket, err := UnmarshalBlobTicket(rest[:ticketLen])
	if err != nil {
		return TrainingResult{}, err
	}
	t.Ticket = ticket
	rest = rest[ticketLen:]

	proof, err := committee.UnmarshalProof(rest)
	if err != nil {
		return TrainingResult{}, err
	}
	t.Proof = proof
	return t, nil
}

// Verify checks that the result's commitment validates against the
// signer's wallet key, and that the committee proof validates against
// root for the round's seed -- the two checks a verifying peer performs
// before scheduling a blob download.
func (t TrainingResult) Verify(pub types.WalletKey, committeeRoot crypto.Hash, seed uint64) bool {
	if !t.Commitment.Verify(pub) {
		return false
	}
	return committee.VerifyCommitteeProof(committeeRoot, seed, t.Proof)
}
