package client

import (
	"context"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/distro"
	"github.com/psyche-network/psyche/types"
)

// DataProvider supplies the raw training data for a batch. The concrete
// implementation (a tokenized dataset reader, an HTTP shard fetcher)
// lives outside this module; this is the capability seam the runtime
// depends on instead.
type DataProvider interface {
	FetchBatch(ctx context.Context, batch types.BatchId) ([]byte, error)
}

// Trainer runs one training step over a batch's data, returning the DisTrO
// gradient result to be published. The numerical training loop itself
// lives outside this module; Trainer is the capability seam.
type Trainer interface {
	Train(ctx context.Context, batch types.BatchId, data []byte) (distro.Result, error)
}

// Verifier independently recomputes (or spot-checks) a peer's training
// result for a batch, used by the client's Verifier-role path.
type Verifier interface {
	Verify(ctx context.Context, batch types.BatchId, data []byte, result distro.Result) (bool, error)
}

// CheckpointLoader materializes model weights from a coordinator.Checkpoint
// before training resumes.
type CheckpointLoader interface {
	Load(ctx context.Context, checkpoint coordinator.Checkpoint) error
}

// WitnessSink submits a round's completed Witness frame to whichever host
// is authoritative for the run: a Witness client message over the
// centralized TCP session, or a witness instruction against a
// decentralized chain.Instance. This is the capability seam
// Runtime.OnTransition depends on.
type WitnessSink interface {
	SubmitWitness(ctx context.Context, signer types.ClientId, w coordinator.Witness) error
}
