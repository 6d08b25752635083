package coordinator

import "errors"

// Kernel errors fall into validation, authorization, and protocol kinds.
// Transport and fatal errors are not kernel concerns; they live in the
// client runtime and p2p packages.
var (
	// ErrConfigSanityCheckFailed is returned by Resume when Config.Check
	// fails.
	ErrConfigSanityCheckFailed = errors.New("coordinator: config sanity check failed")
	// ErrModelSanityCheckFailed is returned by Resume when Model.Check
	// fails.
	ErrModelSanityCheckFailed = errors.New("coordinator: model sanity check failed")
	// ErrInvalidRunState is returned when an operation is attempted in a
	// run state that does not permit it.
	ErrInvalidRunState = errors.New("coordinator: invalid run state for operation")
	// ErrNotWhitelisted is returned when join_run is attempted by a wallet
	// key outside the configured whitelist.
	ErrNotWhitelisted = errors.New("coordinator: client not whitelisted")
	// ErrUnknownSigner is returned when a witness is submitted by a signer
	// that is not an active client.
	ErrUnknownSigner = errors.New("coordinator: signer is not an active client")
	// ErrInvalidWitness is returned when a witness proof does not validate
	// against the current round's witness root, or the proof's position
	// is not within the witness-eligible range.
	ErrInvalidWitness = errors.New("coordinator: invalid witness proof")
	// ErrDuplicateWitness is returned when a signer has already submitted
	// a witness for the current round.
	ErrDuplicateWitness = errors.New("coordinator: duplicate witness for round")
	// ErrWitnessesFull is returned when the round's witness vector is
	// already at witness_quorum capacity.
	ErrWitnessesFull = errors.New("coordinator: witness quorum already reached")
	// ErrBelowMinClients is returned internally when an operation would
	// leave the active client set below min_clients; callers see this
	// surfaced as a WaitingForMembers transition rather than an error.
	ErrBelowMinClients = errors.New("coordinator: active client set below min_clients")
	// ErrMaxClientsReached is returned when join_run is attempted by a new
	// wallet once the active client set has already reached max_clients.
	ErrMaxClientsReached = errors.New("coordinator: max_clients reached")
)
