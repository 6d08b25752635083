package main

import (
	"context"
	"fmt"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/wire"
)

// sessionSource adapts a serverSession's inbound Coordinator snapshot
// frames into a watcher.Source. The centralized wire protocol's
// Coordinator frame (wire.CoordinatorSnapshot) is deliberately a reduced
// projection of the kernel's full state (see wire.FromCoordinator), but it
// does carry the frozen client roster and the committee-sizing Config
// fields a client.Runtime needs to derive its own role and data assignment
// (committee.New, coordinator.AssignDataForState); this adapter
// reconstructs a coordinator.Coordinator value good enough for that, not a
// byte-identical copy of the host's full in-memory layout.
type sessionSource struct {
	snapshots <-chan wire.CoordinatorSnapshot
	errs      <-chan error
}

func (s *sessionSource) Fetch(ctx context.Context) (coordinator.Coordinator, error) {
	select {
	case <-ctx.Done():
		return coordinator.Coordinator{}, ctx.Err()
	case err := <-s.errs:
		return coordinator.Coordinator{}, err
	case snap := <-s.snapshots:
		return fromSnapshot(snap), nil
	}
}

// fromSnapshot reconstructs the subset of coordinator.Coordinator a
// client.Runtime depends on: EpochState.Clients, the current round's
// seed/height/data-window, the committee-sizing Config fields, and the
// model's checkpoint location.
func fromSnapshot(snap wire.CoordinatorSnapshot) coordinator.Coordinator {
	c := coordinator.Coordinator{
		RunID:        snap.RunID,
		RunState:     snap.RunState,
		Progress:     snap.Progress,
		LastTickUnix: snap.TickUnix,
		Model:        coordinator.Model{LLM: &coordinator.LLMModel{Checkpoint: snap.Checkpoint}},
		Config: coordinator.Config{
			WitnessNodes:         snap.WitnessNodes,
			VerificationPercent:  snap.VerificationPercent,
			BatchesPerRound:      snap.BatchesPerRound,
			DataIndiciesPerBatch: snap.DataIndiciesPerBatch,
			WitnessBloomSize:     snap.WitnessBloomSize,
			DataShuffleSeed:      snap.DataShuffleSeed,
		},
		EpochState: coordinator.EpochState{
			Clients: snap.Clients,
			Rounds: []coordinator.Round{{
				Height:          snap.Height,
				TieBreakerTasks: snap.TieBreakerTasks,
				DataIndex:       snap.DataIndex,
				RandomSeed:      snap.RandomSeed,
			}},
		},
	}
	return c
}

// pumpServerFrames reads frames from sess until ctx is cancelled or the
// connection fails, forwarding every Coordinator snapshot to the returned
// source. Any other frame, P2PConnect included, is dropped without being
// logged or acted on.
func pumpServerFrames(ctx context.Context, sess *serverSession) *sessionSource {
	snapshots := make(chan wire.CoordinatorSnapshot, 1)
	errs := make(chan error, 1)

	go func() {
		for {
			msg, err := sess.Recv()
			if err != nil {
				select {
				case errs <- fmt.Errorf("psyche-client: server connection: %w", err):
				case <-ctx.Done():
				}
				return
			}
			if msg.Coordinator == nil {
				continue
			}
			select {
			case snapshots <- *msg.Coordinator:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &sessionSource{snapshots: snapshots, errs: errs}
}
