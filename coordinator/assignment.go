package coordinator

import (
	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// BatchIdsForState deterministically partitions
// [dataIndex, dataIndex + batchesPerRound*dataIndiciesPerBatch) into
// batchesPerRound consecutive, disjoint BatchIds.
func BatchIdsForState(dataIndex uint64, batchesPerRound uint16, dataIndiciesPerBatch uint32) []types.BatchId {
	out := make([]types.BatchId, batchesPerRound)
	cursor := dataIndex
	for i := range out {
		start := cursor
		end := start + uint64(dataIndiciesPerBatch) - 1
		out[i] = types.BatchId{Start: start, End: end}
		cursor = end + 1
	}
	return out
}

// AssignDataForState partitions the round's data window into batches and
// permutes the trainer/verifier -> batch assignment deterministically
// using the round seed, so every assignee receives a disjoint subset and
// the union across assignees is the full partition. dataShuffleSeed is
// Config.DataShuffleSeed, XORed into the permutation seed: left at its
// zero default, the round's own seed alone determines the permutation
// ("derive per round"); a non-zero run-wide value pins the permutation's
// randomness independent of whatever derives the round seed itself,
// without disturbing committee/witness selection, which still seeds from
// seed alone.
func AssignDataForState(sel *committee.Selection, seed uint64, dataShuffleSeed uint64, dataIndex uint64, batchesPerRound uint16, dataIndiciesPerBatch uint32) map[types.ClientId][]types.BatchId {
	batches := BatchIdsForState(dataIndex, batchesPerRound, dataIndiciesPerBatch)

	var assignees []types.ClientId
	for _, id := range sel.CommitteeOrder() {
		role, err := sel.RoleOf(id)
		if err != nil {
			continue
		}
		if role == committee.RoleTrainer || role == committee.RoleVerifier {
			assignees = append(assignees, id)
		}
	}
	if len(assignees) == 0 {
		return map[types.ClientId][]types.BatchId{}
	}

	perm := crypto.Shuffle(seed^dataShuffleSeed, len(assignees))
	out := make(map[types.ClientId][]types.BatchId, len(assignees))
	for i, batch := range batches {
		assignee := assignees[perm[i%len(perm)]]
		out[assignee] = append(out[assignee], batch)
	}
	return out
}
