package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/distro"
	"github.com/psyche-network/psyche/log"
	"github.com/psyche-network/psyche/p2p"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/watcher"
)

// compressBlobLevel is the gzip level Runtime.TrainAssigned compresses
// published blobs at; 0 selects gzip.DefaultCompression.
const compressBlobLevel = 0

// Runtime drives one client's per-round pipeline: training its assigned
// batches under bounded concurrency, publishing results over the gossip
// plane, folding observed peer results into the current round's witness
// Bloom filters, and (for witness-eligible rounds) submitting the round's
// Witness frame exactly once.
type Runtime struct {
	Config   Config
	Identity types.ClientId
	priv     crypto.PrivateKey

	data        DataProvider
	trainer     Trainer
	broadcaster p2p.Broadcaster

	// verifier, downloads, witnessSink, and checkpoints are optional
	// capability seams OnTransition wires the Verifier/TieBreaker,
	// witness-submission, and warmup checkpoint-load paths through, left
	// nil until a caller attaches one.
	verifier    Verifier
	downloads   *p2p.DownloadManager
	witnessSink WitnessSink
	checkpoints CheckpointLoader

	// loadedCheckpoint records the last checkpoint handed to the loader,
	// so re-entering Warmup each epoch does not reload unchanged weights.
	loadedCheckpoint *coordinator.Checkpoint

	sem *semaphore.Weighted
	log *log.Logger

	mu     sync.Mutex
	rounds map[uint32]*RoundState
}

// WithVerifier attaches the numeric verification capability a Verifier-role
// client uses to recheck a peer's downloaded gradient. Without one,
// OnTransition still verifies a peer's commitment signature and committee
// proof and downloads its blob, but skips recomputing the gradient itself.
func (r *Runtime) WithVerifier(v Verifier) *Runtime {
	r.verifier = v
	return r
}

// WithDownloadManager attaches the blob-fetch plane the Verifier/TieBreaker
// path schedules a download through once a peer's TrainingResult verifies
// cryptographically. Without one, verified results are folded into this
// round's witness Bloom filters but never fetched.
func (r *Runtime) WithDownloadManager(dm *p2p.DownloadManager) *Runtime {
	r.downloads = dm
	return r
}

// WithWitnessSink attaches the transport OnTransition submits a completed
// Witness frame through on entering RoundWitness.
func (r *Runtime) WithWitnessSink(sink WitnessSink) *Runtime {
	r.witnessSink = sink
	return r
}

// WithCheckpointLoader attaches the capability OnTransition uses to
// materialize model weights when the run enters Warmup with a checkpoint
// this client has not yet loaded.
func (r *Runtime) WithCheckpointLoader(loader CheckpointLoader) *Runtime {
	r.checkpoints = loader
	return r
}

// NewRuntime creates a Runtime for identity, signing published results
// with priv, training batches via trainer, sourcing their data via data,
// and broadcasting over broadcaster. cfg.MaxConcurrentParameterRequests
// bounds concurrent training.
func NewRuntime(cfg Config, identity types.ClientId, priv crypto.PrivateKey, data DataProvider, trainer Trainer, broadcaster p2p.Broadcaster) *Runtime {
	return &Runtime{
		Config:      cfg,
		Identity:    identity,
		priv:        priv,
		data:        data,
		trainer:     trainer,
		broadcaster: broadcaster,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentParameterRequests),
		log:         log.Module("client"),
		rounds:      make(map[uint32]*RoundState),
	}
}

// BeginRound creates and registers this round's RoundState, discarding any
// prior state for the same height (a round height is never revisited
// within a run, so this only matters for epoch-boundary re-seeding).
func (r *Runtime) BeginRound(height uint32, seed uint64, assigned []types.BatchId, witnessEligible bool) *RoundState {
	var bloomBits uint32
	if witnessEligible {
		bloomBits = r.Config.WitnessBloomSize
	}
	rs := NewRoundState(height, seed, assigned, bloomBits)
	r.mu.Lock()
	r.rounds[height] = rs
	r.mu.Unlock()
	return rs
}

// Round returns the registered RoundState for height, if any.
func (r *Runtime) Round(height uint32) (*RoundState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rounds[height]
	return rs, ok
}

// EndRound discards the bookkeeping for height once the round has closed.
func (r *Runtime) EndRound(height uint32) {
	r.mu.Lock()
	delete(r.rounds, height)
	r.mu.Unlock()
}

// TrainAssigned trains every not-yet-trained batch of this round's
// RoundState, bounded to Config.MaxConcurrentParameterRequests concurrent
// trainers, and publishes each result as a signed TrainingResult over the
// gossip plane tagged with step and proof (the client's proof of committee
// membership, the same for every batch it trains this round). It returns
// once all assigned batches have been trained or the first trainer error
// occurs; a trainer error aborts the remaining in-flight work via ctx
// cancellation, matching errgroup's fail-fast semantics.
func (r *Runtime) TrainAssigned(ctx context.Context, height uint32, step uint32, proof committee.CommitteeProof) error {
	rs, ok := r.Round(height)
	if !ok {
		return fmt.Errorf("client: no round state for height %d", height)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range rs.Remaining() {
		batch := batch
		g.Go(func() error {
			if err := r.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer r.sem.Release(1)
			return r.trainOne(gctx, rs, batch, step, proof)
		})
	}
	return g.Wait()
}

func (r *Runtime) trainOne(ctx context.Context, rs *RoundState, batch types.BatchId, step uint32, proof committee.CommitteeProof) error {
	data, err := r.data.FetchBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("client: fetch batch %s: %w", batch, err)
	}
	result, err := r.trainer.Train(ctx, batch, data)
	if err != nil {
		return fmt.Errorf("client: train batch %s: %w", batch, err)
	}
	serialized, err := distro.NewSerializedResult(result)
	if err != nil {
		return fmt.Errorf("client: serialize result for batch %s: %w", batch, err)
	}
	transmittable := distro.TransmittableResult{Step: step, BatchId: batch, Results: []distro.SerializedResult{serialized}}
	blob, err := distro.EncodeBlob(transmittable.Results, true, compressBlobLevel)
	if err != nil {
		return fmt.Errorf("client: encode blob for batch %s: %w", batch, err)
	}

	commitment := types.SignCommitment(r.priv, blob)
	ticket := p2p.BlobTicket{Hash: crypto.Sha256(blob)}
	tr := p2p.TrainingResult{
		Step:       step,
		BatchId:    batch,
		Commitment: commitment,
		Ticket:     ticket,
		Proof:      proof,
	}

	if err := p2p.PublishTrainingResult(ctx, r.broadcaster, r.Config.RunID, r.priv, tr); err != nil {
		return fmt.Errorf("client: publish result for batch %s: %w", batch, err)
	}
	if err := rs.MarkTrained(batch); err != nil {
		return fmt.Errorf("client: mark batch %s trained: %w", batch, err)
	}
	return nil
}

// ObserveTrainingResult folds a peer's published TrainingResult into
// height's RoundState witness Bloom filters, called for every message a
// witness-eligible client receives off the gossip plane.
// signer is the ClientId the caller resolved for msg.From; callers are
// expected to have already verified msg against the round's committee root.
func (r *Runtime) ObserveTrainingResult(height uint32, signer types.ClientId, msg p2p.TrainingResultMessage) {
	rs, ok := r.Round(height)
	if !ok {
		r.log.Warn("client: observed training result for unknown round", "height", height)
		return
	}
	rs.ObserveResult(signer, msg.Result.BatchId)
}

// OnTransition drives the per-round client pipeline from a single
// watcher transition: it computes the round's CommitteeSelection, derives
// this client's role and witness eligibility, and on a RoundTrain entry
// either begins training its assigned batches (Trainer) or begins
// observing and verifying peer TrainingResult gossip (Verifier,
// TieBreaker); on a RoundWitness entry it builds and submits the round's
// Witness frame exactly once. cur.Coordinator must carry the frozen
// EpochState.Clients roster and the committee-sizing Config fields (the
// watcher Source is expected to reconstruct these from the wire
// projection, see wire.CoordinatorSnapshot).
func (r *Runtime) OnTransition(ctx context.Context, prev, cur watcher.Snapshot) {
	c := cur.Coordinator
	switch c.RunState {
	case coordinator.Warmup:
		r.loadCheckpoint(ctx, &c)
	case coordinator.RoundTrain:
		r.enterRound(ctx, &c)
	case coordinator.RoundWitness:
		r.submitWitness(ctx, &c)
	}
}

// loadCheckpoint hands the run's current checkpoint to the attached
// CheckpointLoader on Warmup entry, skipping checkpoints already loaded
// (each epoch re-enters Warmup, usually with an unchanged checkpoint).
func (r *Runtime) loadCheckpoint(ctx context.Context, c *coordinator.Coordinator) {
	if r.checkpoints == nil || c.Model.LLM == nil {
		return
	}
	cp := c.Model.LLM.Checkpoint
	r.mu.Lock()
	if r.loadedCheckpoint != nil && *r.loadedCheckpoint == cp {
		r.mu.Unlock()
		return
	}
	r.loadedCheckpoint = &cp
	r.mu.Unlock()

	r.log.Info("loading checkpoint", "source", cp.Source, "ref", cp.Ref)
	go func() {
		if err := r.checkpoints.Load(ctx, cp); err != nil {
			r.log.Error("checkpoint load failed", "source", cp.Source, "err", err)
		}
	}()
}

func (r *Runtime) enterRound(ctx context.Context, c *coordinator.Coordinator) {
	if len(c.EpochState.Rounds) == 0 {
		return
	}
	round := c.EpochState.CurrentRound()
	if _, exists := r.Round(round.Height); exists {
		return
	}

	sel, err := committee.New(int(round.TieBreakerTasks), int(c.Config.WitnessNodes), int(c.Config.VerificationPercent), c.EpochState.Clients, round.RandomSeed)
	if err != nil {
		r.log.Warn("client: committee selection failed", "height", round.Height, "err", err)
		return
	}
	role, err := sel.RoleOf(r.Identity)
	if err != nil {
		r.log.Debug("client: not a committee member this round", "height", round.Height)
		return
	}
	_, witnessEligible := sel.IsWitnessEligible(r.Identity)

	var assigned []types.BatchId
	if role == committee.RoleTrainer || role == committee.RoleVerifier {
		assignments := coordinator.AssignDataForState(sel, round.RandomSeed, c.Config.DataShuffleSeed, round.DataIndex, c.Config.BatchesPerRound, c.Config.DataIndiciesPerBatch)
		assigned = assignments[r.Identity]
	}
	r.BeginRound(round.Height, round.RandomSeed, assigned, witnessEligible)

	switch role {
	case committee.RoleTrainer:
		proof, err := sel.CommitteeProofFor(r.Identity)
		if err != nil {
			r.log.Warn("client: committee proof failed", "height", round.Height, "err", err)
			return
		}
		go func() {
			if err := r.TrainAssigned(ctx, round.Height, c.Progress.Step, proof); err != nil {
				r.log.Warn("client: training failed", "height", round.Height, "err", err)
			}
		}()
	case committee.RoleVerifier, committee.RoleTieBreaker:
		go r.observePeerResults(ctx, round.Height, sel, round.RandomSeed)
	}
}

// observePeerResults runs for the remainder of a round a Verifier or
// TieBreaker was selected into: for every TrainingResult observed over
// gossip it checks the result's commitment signature and committee proof
// against this round's roster, folds the observation into this round's
// witness Bloom filters (a no-op if this client isn't witness-eligible),
// and schedules a blob download so the claimed gradient can be checked
// against the commitment hash and handed to the Verifier capability.
func (r *Runtime) observePeerResults(ctx context.Context, height uint32, sel *committee.Selection, seed uint64) {
	results, err := p2p.ReceiveTrainingResults(ctx, r.broadcaster, r.Config.RunID)
	if err != nil {
		r.log.Warn("client: subscribe to training results failed", "height", height, "err", err)
		return
	}

	root := sel.CommitteeRoot()
	for msg := range results {
		signer, ok := r.resolveSigner(msg.From, sel)
		if !ok {
			continue
		}
		if !msg.Result.Verify(signer, root, seed) {
			continue
		}
		r.ObserveTrainingResult(height, types.ClientId{Wallet: signer, P2P: msg.From}, msg)
		r.scheduleVerification(ctx, height, msg.Result)
	}
}

// resolveSigner recovers the wallet key behind a gossip message's P2P
// session key by scanning the round's committee roster, which holds every
// active client's (wallet, P2P) pair.
func (r *Runtime) resolveSigner(p2pKey types.P2PKey, sel *committee.Selection) (types.WalletKey, bool) {
	for _, id := range sel.CommitteeOrder() {
		if id.P2P == p2pKey {
			return id.Wallet, true
		}
	}
	return types.WalletKey{}, false
}

func (r *Runtime) scheduleVerification(ctx context.Context, height uint32, tr p2p.TrainingResult) {
	if r.downloads == nil {
		return
	}
	updates, err := r.downloads.Start(ctx, tr.Ticket)
	if err != nil {
		if !errors.Is(err, p2p.ErrAlreadyDownloading) {
			r.log.Warn("client: schedule download failed", "height", height, "hash", tr.Ticket.Hash, "err", err)
		}
		return
	}
	go func() {
		for u := range updates {
			if !u.Done {
				continue
			}
			if u.Err != nil {
				r.log.Warn("client: download failed", "height", height, "hash", u.Hash, "err", u.Err)
				return
			}
			r.applyVerifiedBlob(ctx, height, tr, u.Blob)
		}
	}()
}

// applyVerifiedBlob checks a downloaded blob against its claimed commitment
// hash and, if a Verifier capability is attached, decodes it and hands each
// gradient to the Verifier. Deciding what to do with the verdict (slashing,
// dispute resolution) is the capability's responsibility; this method only
// logs.
func (r *Runtime) applyVerifiedBlob(ctx context.Context, height uint32, tr p2p.TrainingResult, blob []byte) {
	if crypto.Sha256(blob) != tr.Commitment.DataHash {
		r.log.Warn("client: downloaded blob does not match commitment", "height", height, "hash", tr.Ticket.Hash)
		return
	}
	if r.verifier == nil {
		return
	}
	serialized, err := distro.DecodeBlob(blob)
	if err != nil {
		r.log.Warn("client: decode downloaded blob failed", "height", height, "err", err)
		return
	}
	for _, s := range serialized {
		result, err := s.ToResult()
		if err != nil {
			r.log.Warn("client: deserialize gradient failed", "height", height, "err", err)
			continue
		}
		ok, err := r.verifier.Verify(ctx, tr.BatchId, blob, result)
		if err != nil {
			r.log.Warn("client: verifier error", "height", height, "batch", tr.BatchId, "err", err)
			continue
		}
		if !ok {
			r.log.Warn("client: verification failed", "height", height, "batch", tr.BatchId)
		}
	}
}

// submitWitness builds and sends this round's Witness frame exactly once,
// if this client is witness-eligible and has a WitnessSink attached.
func (r *Runtime) submitWitness(ctx context.Context, c *coordinator.Coordinator) {
	if len(c.EpochState.Rounds) == 0 {
		return
	}
	round := c.EpochState.CurrentRound()
	rs, ok := r.Round(round.Height)
	if !ok || rs.WitnessSubmitted() {
		return
	}

	sel, err := committee.New(int(round.TieBreakerTasks), int(c.Config.WitnessNodes), int(c.Config.VerificationPercent), c.EpochState.Clients, round.RandomSeed)
	if err != nil {
		r.log.Warn("client: committee selection failed", "height", round.Height, "err", err)
		return
	}
	pos, eligible := sel.IsWitnessEligible(r.Identity)
	if !eligible {
		return
	}
	proof, err := sel.WitnessProofFor(r.Identity)
	if err != nil {
		r.log.Warn("client: witness proof failed", "height", round.Height, "err", err)
		return
	}
	w, err := rs.BuildWitness(uint64(pos), proof)
	if err != nil {
		if !errors.Is(err, ErrWitnessAlreadySubmitted) {
			r.log.Warn("client: build witness failed", "height", round.Height, "err", err)
		}
		return
	}
	if r.witnessSink == nil {
		r.log.Warn("client: no witness sink attached, dropping witness", "height", round.Height)
		return
	}
	if err := r.witnessSink.SubmitWitness(ctx, r.Identity, w); err != nil {
		r.log.Warn("client: submit witness failed", "height", round.Height, "err", err)
	}
}
