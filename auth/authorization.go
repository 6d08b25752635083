// Package auth implements the decentralized authorization a client uses
// to delegate scoped actions (e.g. submitting training results on its
// behalf) to another wallet: a grantor/grantee/scope record with an
// optional delegate list and a quarantine period gating close while
// delegates remain attached.
package auth

import (
	"bytes"
	"errors"

	"github.com/psyche-network/psyche/types"
)

// quarantineSeconds is the minimum time that must elapse since the
// authorization's grantor last updated its active flag before it may be
// closed while delegates are still attached.
const quarantineSeconds = 30 * 24 * 60 * 60

// ErrAuthorizationActive is returned by Close when the authorization is
// still active; the grantor must deactivate it first.
var ErrAuthorizationActive = errors.New("auth: authorization is still active")

// ErrQuarantinePeriodActive is returned by Close when delegates remain
// attached and the quarantine period since the last grantor update has not
// yet elapsed.
var ErrQuarantinePeriodActive = errors.New("auth: quarantine period has not elapsed")

// ErrNotGrantor is returned when an operation restricted to the grantor is
// attempted by any other wallet.
var ErrNotGrantor = errors.New("auth: caller is not the grantor")

// ErrNotGrantee is returned when an operation restricted to the grantee is
// attempted by any other wallet.
var ErrNotGrantee = errors.New("auth: caller is not the grantee")

// Authorization is a single grantor -> grantee delegation of scope, with
// an active flag the grantor can toggle and a list of further delegates
// the grantee may attach.
type Authorization struct {
	Grantor types.WalletKey
	Grantee types.WalletKey
	Scope   []byte

	Active    bool
	Delegates []types.WalletKey

	// GrantorUpdateUnixTimestamp is stamped every time the grantor changes
	// Active, and anchors Close's quarantine check.
	GrantorUpdateUnixTimestamp int64
}

// New creates an Authorization for (grantor, grantee, scope). Active
// starts false and must be explicitly turned on by the grantor via
// SetActive, mirroring the on-chain create instruction's zero-initialized
// account.
func New(grantor, grantee types.WalletKey, scope []byte) Authorization {
	return Authorization{
		Grantor: grantor,
		Grantee: grantee,
		Scope:   append([]byte(nil), scope...),
	}
}

// IsValidFor reports whether this authorization currently grants grantee
// permission to act for grantor within scope: the wallets and scope must
// match exactly and the authorization must be active.
func (a Authorization) IsValidFor(grantor, grantee types.WalletKey, scope []byte) bool {
	return a.Active &&
		a.Grantor == grantor &&
		a.Grantee == grantee &&
		bytes.Equal(a.Scope, scope)
}

// IsDelegate reports whether wallet has been attached as a delegate.
func (a Authorization) IsDelegate(wallet types.WalletKey) bool {
	for _, d := range a.Delegates {
		if d == wallet {
			return true
		}
	}
	return false
}

// SetActive toggles the authorization's active flag on behalf of caller,
// who must be the grantor, stamping GrantorUpdateUnixTimestamp at nowUnix.
func (a *Authorization) SetActive(caller types.WalletKey, active bool, nowUnix int64) error {
	if caller != a.Grantor {
		return ErrNotGrantor
	}
	a.Active = active
	a.GrantorUpdateUnixTimestamp = nowUnix
	return nil
}

// SetDelegates replaces the delegate list wholesale on behalf of caller,
// who must be the grantee.
func (a *Authorization) SetDelegates(caller types.WalletKey, delegates []types.WalletKey) error {
	if caller != a.Grantee {
		return ErrNotGrantee
	}
	a.Delegates = append([]types.WalletKey(nil), delegates...)
	return nil
}

// UpdateDelegates on behalf of caller, who must be the grantee: optionally
// clears the existing delegate list, then appends added.
func (a *Authorization) UpdateDelegates(caller types.WalletKey, clear bool, added []types.WalletKey) error {
	if caller != a.Grantee {
		return ErrNotGrantee
	}
	if clear {
		a.Delegates = nil
	}
	a.Delegates = append(a.Delegates, added...)
	return nil
}

// Close reports whether caller (who must be the grantor) may close this
// authorization at nowUnix: it must be inactive, and if any delegates
// remain attached, at least quarantineSeconds must have elapsed since the
// last grantor update.
func (a Authorization) Close(caller types.WalletKey, nowUnix int64) error {
	if caller != a.Grantor {
		return ErrNotGrantor
	}
	if a.Active {
		return ErrAuthorizationActive
	}
	if len(a.Delegates) > 0 && nowUnix < a.GrantorUpdateUnixTimestamp+quarantineSeconds {
		return ErrQuarantinePeriodActive
	}
	return nil
}

// Revoke immediately and unconditionally closes this authorization on
// behalf of caller, who must be the grantor. Unlike Close, it bypasses
// both the active check and the delegate quarantine, mirroring the
// original program's revoke instruction, which (deliberately) has no
// closing conditions beyond the grantor's signature.
func (a Authorization) Revoke(caller types.WalletKey) error {
	if caller != a.Grantor {
		return ErrNotGrantor
	}
	return nil
}
