package p2p

import (
	"context"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/wire"
)

// gossipTopicPrefix is hashed together with the run id to derive the
// broadcast topic: sha256("psyche gossip" || run_id).
const gossipTopicPrefix = "psyche gossip"

// Topic derives the 32-byte gossip topic id for runID.
func Topic(runID string) crypto.Hash {
	return crypto.Sha256v([]byte(gossipTopicPrefix), []byte(runID))
}

// Broadcaster is the authenticated gossip transport the client runtime
// publishes TrainingResult announcements over. It is a capability
// interface; the concrete implementation is the underlying transport,
// which lives outside this module.
type Broadcaster interface {
	// Broadcast publishes msg under topic to every connected peer.
	Broadcast(ctx context.Context, topic crypto.Hash, msg wire.SignedMessage) error
	// Subscribe returns a channel of messages received under topic until
	// ctx is cancelled, at which point the channel is closed.
	Subscribe(ctx context.Context, topic crypto.Hash) (<-chan wire.SignedMessage, error)
}

// PublishTrainingResult signs and broadcasts a TrainingResult under the
// run's gossip topic.
func PublishTrainingResult(ctx context.Context, b Broadcaster, runID string, priv crypto.PrivateKey, tr TrainingResult) error {
	msg := wire.Sign(priv, tr.Marshal())
	return b.Broadcast(ctx, Topic(runID), msg)
}

// ReceiveTrainingResults subscribes to the run's gossip topic and decodes
// every authenticated TrainingResult observed. Messages that fail
// signature verification or decoding are dropped silently:
// transport/decode errors are not kernel-relevant and must not abort the
// client runtime.
func ReceiveTrainingResults(ctx context.Context, b Broadcaster, runID string) (<-chan TrainingResultMessage, error) {
	raw, err := b.Subscribe(ctx, Topic(runID))
	if err != nil {
		return nil, err
	}
	out := make(chan TrainingResultMessage)
	go func() {
		defer close(out)
		for msg := range raw {
			if !msg.Verify() {
				continue
			}
			tr, err := UnmarshalTrainingResult(msg.Data)
			if err != nil {
				continue
			}
			select {
			case out <- TrainingResultMessage{From: msg.From, Result: tr}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// TrainingResultMessage pairs a decoded TrainingResult with the P2P public
// key that signed it.
type TrainingResultMessage struct {
	From   crypto.PublicKey
	Result TrainingResult
}
