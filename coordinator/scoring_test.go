package coordinator

import (
	"testing"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// runFullEpoch drives a freshly resumed coordinator through warmup and
// every round of one epoch, having witness-eligible clients submit honest
// witnesses each round until the round's witness quorum is reached, and
// returns the resulting EpochSummary.
func runFullEpoch(t *testing.T, c *Coordinator, clients []types.ClientId) *EpochSummary {
	t.Helper()
	var now int64
	if _, err := c.Tick(clients, now, 11); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	now += int64(c.Config.WarmupTime)
	if _, err := c.Tick(clients, now, 11); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if c.RunState != RoundTrain {
		t.Fatalf("expected RoundTrain, got %v", c.RunState)
	}

	for r := uint16(0); r < c.Config.RoundsPerEpoch; r++ {
		sel, err := c.CurrentSelection()
		if err != nil {
			t.Fatalf("CurrentSelection: %v", err)
		}
		submitted := 0
		for _, id := range sel.WitnessOrder() {
			if uint32(submitted) >= c.Config.WitnessQuorum {
				break
			}
			pos, eligible := sel.IsWitnessEligible(id)
			if !eligible {
				continue
			}
			proof, err := sel.WitnessProofFor(id)
			if err != nil {
				t.Fatalf("WitnessProofFor: %v", err)
			}
			bloom := crypto.NewBloom(int(c.Config.WitnessBloomSize), c.EpochState.CurrentRound().RandomSeed)
			assignments := AssignDataForState(sel, c.EpochState.CurrentRound().RandomSeed, c.Config.DataShuffleSeed, c.EpochState.CurrentRound().DataIndex, c.Config.BatchesPerRound, c.Config.DataIndiciesPerBatch)
			for signer, batches := range assignments {
				for _, b := range batches {
					key := append(append([]byte{}, signer.Bytes()...), b.Bytes()...)
					bloom.Add(key)
				}
			}
			w := Witness{Index: uint64(pos), Proof: proof, ParticipantBits: bloom.Bytes()}
			if err := c.Witness(id, w, now); err != nil {
				t.Fatalf("Witness: %v", err)
			}
			submitted++
		}

		now++
		if _, err := c.Tick(clients, now, 11); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if c.RunState != RoundWitness {
			t.Fatalf("expected RoundWitness, got %v", c.RunState)
		}
		now++
		outcome, err := c.Tick(clients, now, 11)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if r == c.Config.RoundsPerEpoch-1 {
			if outcome.EpochSummary == nil {
				t.Fatalf("expected EpochSummary at epoch boundary")
			}
			return outcome.EpochSummary
		}
	}
	t.Fatalf("unreachable")
	return nil
}

func TestScoreEpochAllHonestWitnessesHealthy(t *testing.T) {
	c := newTestCoordinator(t)
	clients := make([]types.ClientId, 4)
	for i := range clients {
		clients[i] = makeClient(byte(i + 1))
		c.JoinRun(clients[i])
	}

	summary := runFullEpoch(t, c, clients)
	if len(summary.Ejected) != 0 {
		t.Fatalf("expected no ejections with full honest witness coverage, got %d", len(summary.Ejected))
	}
	if len(summary.Healthy) != len(clients) {
		t.Fatalf("expected all %d clients healthy, got %d", len(clients), len(summary.Healthy))
	}
}

func TestScoreEpochZeroWitnessRoundsContributeNoEvidence(t *testing.T) {
	c := newTestCoordinator(t)
	clients := make([]types.ClientId, 3)
	for i := range clients {
		clients[i] = makeClient(byte(i + 1))
		c.JoinRun(clients[i])
	}

	c.Tick(clients, 0, 5)
	c.Tick(clients, int64(c.Config.WarmupTime), 5)
	if c.RunState != RoundTrain {
		t.Fatalf("expected RoundTrain, got %v", c.RunState)
	}

	// No witnesses submitted at all for the duration of the round; it
	// only closes via timeout.
	now := int64(c.Config.WarmupTime) + int64(c.Config.MaxRoundTrainTime)
	if _, err := c.Tick(clients, now, 5); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if c.RunState != RoundWitness {
		t.Fatalf("expected RoundWitness after timeout, got %v", c.RunState)
	}
	now++
	outcome, err := c.Tick(clients, now, 5)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// First round of a 2-round epoch: no summary yet.
	if outcome.EpochSummary != nil {
		t.Fatalf("did not expect epoch summary after only one of two rounds")
	}
	if c.EpochState.CurrentRound().Witnesses.Len() != 0 {
		t.Fatalf("expected zero witnesses retained for the round")
	}

	// Second (final) round of the epoch, also with zero witnesses.
	now += int64(c.Config.MaxRoundTrainTime)
	if _, err := c.Tick(clients, now, 5); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	now++
	outcome, err = c.Tick(clients, now, 5)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if outcome.EpochSummary == nil {
		t.Fatalf("expected epoch summary at epoch boundary")
	}
	if len(outcome.EpochSummary.Ejected) != 0 {
		t.Fatalf("zero-witness rounds must not cause ejections, got %d ejected", len(outcome.EpochSummary.Ejected))
	}
	if len(outcome.EpochSummary.Healthy) != len(clients) {
		t.Fatalf("expected all clients to remain healthy absent any evidence, got %d", len(outcome.EpochSummary.Healthy))
	}
}

func TestWitnessObservedCountsHitsAndTotal(t *testing.T) {
	c := newTestCoordinator(t)
	clients := []types.ClientId{makeClient(1), makeClient(2)}
	c.JoinRun(clients[0])
	c.JoinRun(clients[1])
	c.Tick(clients, 0, 9)
	c.Tick(clients, int64(c.Config.WarmupTime), 9)

	round := c.EpochState.CurrentRound()
	signer := clients[0]
	batch := types.BatchId{Start: 0, End: 7}

	hits, total := witnessObserved(c.Config.WitnessBloomSize, round, signer, batch)
	if total != 0 || hits != 0 {
		t.Fatalf("expected 0/0 with no witnesses retained yet, got %d/%d", hits, total)
	}

	bloom := crypto.NewBloom(int(c.Config.WitnessBloomSize), round.RandomSeed)
	key := append(append([]byte{}, signer.Bytes()...), batch.Bytes()...)
	bloom.Add(key)

	sel, err := c.CurrentSelection()
	if err != nil {
		t.Fatalf("CurrentSelection: %v", err)
	}
	var witnessId types.ClientId
	for _, id := range sel.WitnessOrder() {
		if _, ok := sel.IsWitnessEligible(id); ok {
			witnessId = id
			break
		}
	}
	pos, _ := sel.IsWitnessEligible(witnessId)
	proof, _ := sel.WitnessProofFor(witnessId)
	w := Witness{Index: uint64(pos), Proof: proof, ParticipantBits: bloom.Bytes()}
	if err := c.Witness(witnessId, w, 1); err != nil {
		t.Fatalf("Witness: %v", err)
	}

	hits, total = witnessObserved(c.Config.WitnessBloomSize, round, signer, batch)
	if total != 1 {
		t.Fatalf("expected total=1, got %d", total)
	}
	if hits != 1 {
		t.Fatalf("expected hits=1 for observed batch, got %d", hits)
	}

	absentBatch := types.BatchId{Start: 1000, End: 1007}
	hits, _ = witnessObserved(c.Config.WitnessBloomSize, round, signer, absentBatch)
	if hits != 0 {
		t.Fatalf("expected hits=0 for unobserved batch, got %d", hits)
	}
}

func TestSelectionForRoundMatchesCurrentSelection(t *testing.T) {
	c := newTestCoordinator(t)
	clients := []types.ClientId{makeClient(1), makeClient(2), makeClient(3)}
	for _, cl := range clients {
		c.JoinRun(cl)
	}
	c.Tick(clients, 0, 3)
	c.Tick(clients, int64(c.Config.WarmupTime), 3)

	want, err := c.CurrentSelection()
	if err != nil {
		t.Fatalf("CurrentSelection: %v", err)
	}
	got, err := c.selectionForRound(c.EpochState.CurrentRound())
	if err != nil {
		t.Fatalf("selectionForRound: %v", err)
	}
	if want.CommitteeRoot() != got.CommitteeRoot() {
		t.Fatalf("committee roots diverge between currentSelection and selectionForRound")
	}
	if want.WitnessRoot() != got.WitnessRoot() {
		t.Fatalf("witness roots diverge between currentSelection and selectionForRound")
	}
}
