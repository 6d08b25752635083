package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/distro"
	"github.com/psyche-network/psyche/p2p"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/watcher"
	"github.com/psyche-network/psyche/wire"
)

type fakeDataProvider struct{}

func (fakeDataProvider) FetchBatch(ctx context.Context, batch types.BatchId) ([]byte, error) {
	return []byte("data for " + batch.String()), nil
}

type fakeTrainer struct{}

func (fakeTrainer) Train(ctx context.Context, batch types.BatchId, data []byte) (distro.Result, error) {
	return distro.Result{
		SparseIndex: distro.Tensor{Dims: []int64{2}, Kind: distro.KindInt32, Data: []byte{0, 0, 0, 1, 0, 0, 0, 2}},
		SparseVal:   distro.Float32Tensor([]int64{2}, []float32{0.5, -0.5}),
		XShape:      []int64{4},
		TotalK:      2,
	}, nil
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []wire.SignedMessage
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, topic crypto.Hash, msg wire.SignedMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (b *recordingBroadcaster) Subscribe(ctx context.Context, topic crypto.Hash) (<-chan wire.SignedMessage, error) {
	ch := make(chan wire.SignedMessage)
	close(ch)
	return ch, nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func newTestRuntime(t *testing.T) (*Runtime, *recordingBroadcaster, types.ClientId) {
	t.Helper()
	_, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var identity types.ClientId
	identity.Wallet = priv.Public()

	cfg := Config{
		RunID:                          "test-run",
		MaxConcurrentParameterRequests: 2,
		WitnessBloomSize:               1024,
		TrainTimeout:                   time.Second,
	}
	b := &recordingBroadcaster{}
	rt := NewRuntime(cfg, identity, priv, fakeDataProvider{}, fakeTrainer{}, b)
	return rt, b, identity
}

func TestRuntimeTrainAssignedPublishesEachBatch(t *testing.T) {
	rt, b, _ := newTestRuntime(t)

	assigned := []types.BatchId{batchRange(0, 9), batchRange(10, 19), batchRange(20, 29)}
	rt.BeginRound(1, 99, assigned, false)

	proof := committee.CommitteeProof{ClientId: rt.Identity}
	if err := rt.TrainAssigned(context.Background(), 1, 7, proof); err != nil {
		t.Fatalf("TrainAssigned: %v", err)
	}

	if b.count() != len(assigned) {
		t.Fatalf("expected %d published results, got %d", len(assigned), b.count())
	}

	rs, ok := rt.Round(1)
	if !ok {
		t.Fatal("expected round state to still be registered")
	}
	if !rs.AllTrained() {
		t.Fatal("expected all assigned batches trained")
	}
}

func TestRuntimeObserveTrainingResultFeedsRoundState(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BeginRound(2, 55, nil, true)

	var peer types.ClientId
	peer.Wallet[0] = 3
	batch := batchRange(0, 9)

	rt.ObserveTrainingResult(2, peer, p2p.TrainingResultMessage{Result: p2p.TrainingResult{BatchId: batch}})

	rs, _ := rt.Round(2)
	if !rs.ParticipantObserved(peer, batch) {
		t.Fatal("expected ObserveTrainingResult to register the batch as observed")
	}
}

type recordingLoader struct {
	mu     sync.Mutex
	loaded []coordinator.Checkpoint
}

func (l *recordingLoader) Load(ctx context.Context, cp coordinator.Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = append(l.loaded, cp)
	return nil
}

func (l *recordingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loaded)
}

func warmupSnapshot(cp coordinator.Checkpoint) watcher.Snapshot {
	return watcher.Snapshot{Coordinator: coordinator.Coordinator{
		RunState: coordinator.Warmup,
		Model:    coordinator.Model{LLM: &coordinator.LLMModel{Checkpoint: cp}},
	}}
}

func waitForCount(t *testing.T, want int, count func() int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d checkpoint loads, got %d", want, count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimeLoadsCheckpointOnWarmupOncePerCheckpoint(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	loader := &recordingLoader{}
	rt.WithCheckpointLoader(loader)

	hub := coordinator.Checkpoint{Source: coordinator.CheckpointHub, Ref: "org/model"}
	rt.OnTransition(context.Background(), watcher.Snapshot{}, warmupSnapshot(hub))
	waitForCount(t, 1, loader.count)

	// Re-entering Warmup with the same checkpoint (a new epoch) must not
	// reload it.
	rt.OnTransition(context.Background(), watcher.Snapshot{}, warmupSnapshot(hub))
	time.Sleep(20 * time.Millisecond)
	if loader.count() != 1 {
		t.Fatalf("expected no reload for unchanged checkpoint, got %d loads", loader.count())
	}

	p2pCp := coordinator.Checkpoint{Source: coordinator.CheckpointP2P}
	rt.OnTransition(context.Background(), watcher.Snapshot{}, warmupSnapshot(p2pCp))
	waitForCount(t, 2, loader.count)
	loader.mu.Lock()
	last := loader.loaded[len(loader.loaded)-1]
	loader.mu.Unlock()
	if last.Source != coordinator.CheckpointP2P {
		t.Fatalf("expected P2P checkpoint load, got %v", last.Source)
	}
}

func TestRuntimeEndRoundDropsState(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	rt.BeginRound(3, 1, nil, false)
	if _, ok := rt.Round(3); !ok {
		t.Fatal("expected round 3 registered")
	}
	rt.EndRound(3)
	if _, ok := rt.Round(3); ok {
		t.Fatal("expected round 3 to be discarded after EndRound")
	}
}
