// Package chain implements the decentralized host: the same coordinator
// kernel executed as if inside a single blockchain smart-contract
// account, driven by discrete instruction calls (one per transaction)
// instead of a TCP frame loop. Unlike server.Server, there is
// no background tick loop here -- tick is itself an instruction, submitted
// by whichever client's transaction happens to carry it.
package chain

import (
	"errors"
	"fmt"

	"github.com/psyche-network/psyche/auth"
	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/types"
)

// JoinRunScope is the authorization scope string join_run checks against,
// mirroring the original program's JOIN_RUN_AUTHORIZATION_SCOPE constant.
var JoinRunScope = []byte("CoordinatorJoinRun")

var (
	// ErrNotMainAuthority is returned when an instruction restricted to
	// the instance's main authority is submitted by any other wallet.
	ErrNotMainAuthority = errors.New("chain: caller is not the main authority")
	// ErrAuthorizationRequired is returned by JoinRun when no valid
	// Authorization for (join_authority, client wallet, JoinRunScope) is
	// presented.
	ErrAuthorizationRequired = errors.New("chain: join_run requires a valid authorization")
	// ErrSignerMismatch is returned when an instruction's declared
	// client_id does not match the transaction's signer.
	ErrSignerMismatch = errors.New("chain: signer does not match client_id")
)

// Instance is the fixed-size, single-owner account the decentralized
// host persists: an instance header (the two authorities and the run id)
// plus the kernel state itself. On a real chain that layout is canonical
// and identical byte-for-byte across host and clients, enforced by the
// runtime's account deserialization. This Go host has no equivalent
// wire-layout requirement of its own (it never serializes Instance to an
// account blob), so Instance is a plain struct; wire/protocol.go's
// CoordinatorSnapshot is what travels to clients that need the
// byte-identical projection.
type Instance struct {
	MainAuthority types.WalletKey
	JoinAuthority types.WalletKey
	RunID         string

	Coordinator *coordinator.Coordinator

	// Nonce increments on every processed instruction, mirroring the
	// original program's per-account replay-protection counter.
	Nonce uint64

	authorizations map[authKey]*auth.Authorization
}

type authKey struct {
	grantor types.WalletKey
	grantee types.WalletKey
	scope   string
}

// InitCoordinator creates a new Instance, mirroring the init_coordinator
// instruction: it does not itself validate coord's config/model (Resume
// does that), matching the original program's init, which only lays out
// the account and leaves the state Uninitialized.
func InitCoordinator(mainAuthority, joinAuthority types.WalletKey, runID string, coord *coordinator.Coordinator) *Instance {
	return &Instance{
		MainAuthority:  mainAuthority,
		JoinAuthority:  joinAuthority,
		RunID:          runID,
		Coordinator:    coord,
		authorizations: make(map[authKey]*auth.Authorization),
	}
}

func (i *Instance) requireMainAuthority(caller types.WalletKey) error {
	if caller != i.MainAuthority {
		return ErrNotMainAuthority
	}
	return nil
}

func (i *Instance) bump() {
	i.Nonce++
}

// SetPaused implements the set_paused instruction: true pauses the run,
// false resumes it at nowUnix. Only the main authority may call this.
func (i *Instance) SetPaused(caller types.WalletKey, paused bool, nowUnix int64) error {
	if err := i.requireMainAuthority(caller); err != nil {
		return err
	}
	defer i.bump()
	if paused {
		return i.Coordinator.Pause()
	}
	return i.Coordinator.Resume(nowUnix)
}

// SetWhitelist implements the set_whitelist instruction.
func (i *Instance) SetWhitelist(caller types.WalletKey, wallets []types.WalletKey) error {
	if err := i.requireMainAuthority(caller); err != nil {
		return err
	}
	defer i.bump()
	return i.Coordinator.SetWhitelist(wallets)
}

// UpdateCoordinatorConfigModel implements update_coordinator_config_model.
func (i *Instance) UpdateCoordinatorConfigModel(caller types.WalletKey, newConfig *coordinator.Config, newModel *coordinator.Model) error {
	if err := i.requireMainAuthority(caller); err != nil {
		return err
	}
	defer i.bump()
	return i.Coordinator.UpdateConfigModel(newConfig, newModel)
}

// JoinRun implements the join_run instruction: the presented
// Authorization must satisfy
// IsValidFor(grantor=join_authority, grantee=id.Wallet, scope=JoinRunScope).
// signer is the transaction's actual signing wallet, which must equal
// id.Wallet (the original program's SignerMismatch check in join_run.rs).
func (i *Instance) JoinRun(signer types.WalletKey, id types.ClientId, authorization auth.Authorization) (coordinator.Client, error) {
	if signer != id.Wallet {
		return coordinator.Client{}, ErrSignerMismatch
	}
	if !authorization.IsValidFor(i.JoinAuthority, id.Wallet, JoinRunScope) {
		return coordinator.Client{}, ErrAuthorizationRequired
	}
	defer i.bump()
	return i.Coordinator.JoinRun(id)
}

// Tick implements the tick instruction: any signer may submit it (the
// original program has no signer restriction on tick), carrying the
// caller's view of the active client set and a random seed it supplies
// (e.g. derived from the slot hash on a real chain).
func (i *Instance) Tick(activeClients []types.ClientId, nowUnix int64, randomSeed uint64) (coordinator.Outcome, error) {
	defer i.bump()
	return i.Coordinator.Tick(activeClients, nowUnix, randomSeed)
}

// Witness implements the witness instruction.
func (i *Instance) Witness(signer types.ClientId, w coordinator.Witness, nowUnix int64) error {
	defer i.bump()
	return i.Coordinator.Witness(signer, w, nowUnix)
}

// FreeCoordinator implements free_coordinator: it is only valid once the
// run has reached a terminal, already-halted state, mirroring the
// original program's refusal to close an account mid-run.
func (i *Instance) FreeCoordinator(caller types.WalletKey) error {
	if err := i.requireMainAuthority(caller); err != nil {
		return err
	}
	if !i.Coordinator.Halted() {
		return fmt.Errorf("chain: cannot free coordinator while run is active (state=%s)", i.Coordinator.RunState)
	}
	i.bump()
	return nil
}

// AuthorizationCreate implements authorization_create: grantor opens an
// Authorization for grantee within scope, inactive until the grantor
// explicitly activates it via AuthorizationGrantorUpdate.
func (i *Instance) AuthorizationCreate(grantor, grantee types.WalletKey, scope []byte) *auth.Authorization {
	a := auth.New(grantor, grantee, scope)
	i.authorizations[authKeyOf(a)] = &a
	i.bump()
	return &a
}

func authKeyOf(a auth.Authorization) authKey {
	return authKey{grantor: a.Grantor, grantee: a.Grantee, scope: string(a.Scope)}
}

// Authorization looks up a previously created Authorization by its
// (grantor, grantee, scope) key, as join_run's account-resolution
// constraint would on a real chain.
func (i *Instance) Authorization(grantor, grantee types.WalletKey, scope []byte) (*auth.Authorization, bool) {
	a, ok := i.authorizations[authKey{grantor: grantor, grantee: grantee, scope: string(scope)}]
	return a, ok
}

// AuthorizationGrantorUpdate implements authorization_grantor_update.
func (i *Instance) AuthorizationGrantorUpdate(caller types.WalletKey, a *auth.Authorization, active bool, nowUnix int64) error {
	defer i.bump()
	return a.SetActive(caller, active, nowUnix)
}

// AuthorizationGranteeUpdate implements authorization_grantee_update.
func (i *Instance) AuthorizationGranteeUpdate(caller types.WalletKey, a *auth.Authorization, clearDelegates bool, addDelegates []types.WalletKey) error {
	defer i.bump()
	return a.UpdateDelegates(caller, clearDelegates, addDelegates)
}

// AuthorizationClose implements authorization_close, removing a from the
// instance's table once Authorization.Close permits it.
func (i *Instance) AuthorizationClose(caller types.WalletKey, a *auth.Authorization, nowUnix int64) error {
	if err := a.Close(caller, nowUnix); err != nil {
		return err
	}
	delete(i.authorizations, authKeyOf(*a))
	i.bump()
	return nil
}
