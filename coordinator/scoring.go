package coordinator

import (
	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// EpochSummary reports the outcome of epoch-end scoring.
type EpochSummary struct {
	Epoch   uint16
	Healthy []types.ClientId
	Ejected []ExitedClient
}

func (c *Coordinator) selectionForRound(r *Round) (*committee.Selection, error) {
	return committee.New(int(r.TieBreakerTasks), int(c.Config.WitnessNodes), int(c.Config.VerificationPercent), c.EpochState.Clients, r.RandomSeed)
}

// witnessObserved counts, over the retained witnesses of round r, how many
// recorded observing batch having been trained by signer (hits) out of how
// many witnesses were retained (total).
func witnessObserved(bloomSize uint32, r *Round, signer types.ClientId, batch types.BatchId) (hits, total int) {
	key := append(append([]byte{}, signer.Bytes()...), batch.Bytes()...)
	for _, entry := range r.Witnesses.Slice() {
		total++
		b := crypto.LoadBloom(int(bloomSize), r.RandomSeed, entry.Witness.ParticipantBits)
		if b.Contains(key) {
			hits++
		}
	}
	return hits, total
}

// scoreEpoch computes per-client scores from the epoch's stored witnesses
// and partitions the frozen client set into Healthy / Ejected.
//
// A round with zero retained witnesses contributes no evidence either way for the batches it should
// have covered, rather than counting as a miss -- so a client is ejected
// only when a batch it was expected to train has a round with at least
// one retained witness and fails to reach a majority of those witnesses.
func (c *Coordinator) scoreEpoch() *EpochSummary {
	healthy := make([]types.ClientId, 0, len(c.EpochState.Clients))
	var ejected []ExitedClient

	for _, client := range c.EpochState.Clients {
		ok := true
		for i := range c.EpochState.Rounds {
			round := &c.EpochState.Rounds[i]
			if round.Witnesses.Len() == 0 {
				continue
			}
			sel, err := c.selectionForRound(round)
			if err != nil {
				continue
			}
			assignments := AssignDataForState(sel, round.RandomSeed, c.Config.DataShuffleSeed, round.DataIndex, c.Config.BatchesPerRound, c.Config.DataIndiciesPerBatch)
			expected := assignments[client]
			if len(expected) == 0 {
				continue
			}
			majority := round.Witnesses.Len()/2 + 1
			for _, batch := range expected {
				hits, total := witnessObserved(c.Config.WitnessBloomSize, round, client, batch)
				if total == 0 {
					continue
				}
				if hits < majority {
					ok = false
				}
			}
		}

		if ok {
			healthy = append(healthy, client)
			c.ClientsState.Credit(client.Wallet, 1)
		} else {
			ejected = append(ejected, ExitedClient{Client: client, Reason: ExitEjected})
			c.ClientsState.Slash(client.Wallet, 1)
		}
	}

	c.EpochState.Clients = healthy
	c.EpochState.ExitedClients = append(c.EpochState.ExitedClients, ejected...)
	return &EpochSummary{Epoch: c.Progress.Epoch, Healthy: healthy, Ejected: ejected}
}
