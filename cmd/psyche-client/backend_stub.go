package main

import (
	"context"
	"errors"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/distro"
	"github.com/psyche-network/psyche/p2p"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/wire"
)

// ErrBackendNotConfigured is returned by unconfiguredBackend's methods.
// Numerical training, tokenization, and data loading live in an external
// trainer process: psyche-client wires the coordination, networking, and
// gossip machinery around it, and a real deployment supplies that process
// in place of this stub.
var ErrBackendNotConfigured = errors.New("psyche-client: no trainer/data-provider backend configured")

// unconfiguredBackend implements client.DataProvider and client.Trainer by
// always failing; it exists so `train` can wire a complete client.Runtime
// and exercise the coordination path (role classification, round
// bookkeeping, witness submission) driven by client.Runtime.OnTransition
// without a real numerical backend attached. A real deployment replaces it
// with a trainer process's data loader and training loop.
type unconfiguredBackend struct{}

func (unconfiguredBackend) FetchBatch(ctx context.Context, batch types.BatchId) ([]byte, error) {
	return nil, ErrBackendNotConfigured
}

func (unconfiguredBackend) Train(ctx context.Context, batch types.BatchId, data []byte) (distro.Result, error) {
	return distro.Result{}, ErrBackendNotConfigured
}

// unconfiguredFetcher implements p2p.Fetcher by always failing; it exists
// so `train` can wire a complete p2p.DownloadManager into the Verifier/
// TieBreaker path without a real content-addressed transport attached.
type unconfiguredFetcher struct{}

func (unconfiguredFetcher) Fetch(ctx context.Context, ticket p2p.BlobTicket, onProgress func(downloaded, total int64)) ([]byte, error) {
	return nil, ErrBackendNotConfigured
}

// noopBroadcaster implements p2p.Broadcaster by refusing to publish and
// never observing peers; the underlying gossip transport is, like the
// trainer, an external collaborator.
type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(ctx context.Context, topic crypto.Hash, msg wire.SignedMessage) error {
	return ErrBackendNotConfigured
}

func (noopBroadcaster) Subscribe(ctx context.Context, topic crypto.Hash) (<-chan wire.SignedMessage, error) {
	ch := make(chan wire.SignedMessage)
	close(ch)
	return ch, nil
}
