// Package coordinator implements the pure coordinator kernel: the
// run-state machine, epoch/round bookkeeping, witness intake, and
// epoch-end scoring/ejection. The kernel performs no I/O; every exported
// mutator is a total function of (state, inputs), consumed identically by
// the centralized TCP host and the decentralized on-chain host.
package coordinator

import (
	"errors"
	"fmt"
)

// Config holds the run's parameters, immutable for the run's duration
// except through UpdateConfigModel.
type Config struct {
	MinClients           uint64
	MaxClients           uint64
	WarmupTime           uint64 // seconds
	CooldownTime         uint64 // seconds
	MaxRoundTrainTime    uint64 // seconds
	WitnessNodes         uint16
	VerificationPercent  uint8 // 0..=100
	WitnessQuorum        uint32
	TieBreakerTasks      uint16
	BatchesPerRound      uint16
	DataIndiciesPerBatch uint32
	RoundsPerEpoch       uint16
	TotalSteps           uint32
	InitMinClients       uint64
	WitnessBloomSize     uint32
	DataShuffleSeed      uint64
}

// Check performs the shape/range sanity checks Resume requires.
func (c Config) Check() error {
	switch {
	case c.MinClients == 0:
		return fmt.Errorf("%w: min_clients must be > 0", errConfigInvalid)
	case c.MaxClients < c.MinClients:
		return fmt.Errorf("%w: max_clients must be >= min_clients", errConfigInvalid)
	case c.InitMinClients == 0:
		return fmt.Errorf("%w: init_min_clients must be > 0", errConfigInvalid)
	case c.VerificationPercent > 100:
		return fmt.Errorf("%w: verification_percent must be <= 100", errConfigInvalid)
	case c.WitnessNodes == 0:
		return fmt.Errorf("%w: witness_nodes must be > 0", errConfigInvalid)
	case uint64(c.WitnessQuorum) > uint64(c.WitnessNodes):
		return fmt.Errorf("%w: witness_quorum must be <= witness_nodes", errConfigInvalid)
	case c.WitnessQuorum == 0:
		return fmt.Errorf("%w: witness_quorum must be > 0", errConfigInvalid)
	case c.BatchesPerRound == 0:
		return fmt.Errorf("%w: batches_per_round must be > 0", errConfigInvalid)
	case c.DataIndiciesPerBatch == 0:
		return fmt.Errorf("%w: data_indicies_per_batch must be > 0", errConfigInvalid)
	case c.RoundsPerEpoch == 0:
		return fmt.Errorf("%w: rounds_per_epoch must be > 0", errConfigInvalid)
	case c.TotalSteps == 0:
		return fmt.Errorf("%w: total_steps must be > 0", errConfigInvalid)
	case c.WitnessBloomSize == 0:
		return fmt.Errorf("%w: witness_bloom_size must be > 0", errConfigInvalid)
	}
	return nil
}

var errConfigInvalid = errors.New("coordinator: config")
