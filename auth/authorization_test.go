package auth

import (
	"testing"

	"github.com/psyche-network/psyche/types"
)

func wallet(b byte) types.WalletKey {
	var w types.WalletKey
	w[0] = b
	return w
}

func TestNewAuthorizationStartsInactive(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))

	if a.Active {
		t.Fatal("expected new authorization to start inactive")
	}
	if a.IsValidFor(grantor, grantee, []byte("train")) {
		t.Fatal("expected IsValidFor false while inactive")
	}
}

func TestSetActiveRequiresGrantor(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))

	if err := a.SetActive(grantee, true, 1000); err != ErrNotGrantor {
		t.Fatalf("expected ErrNotGrantor, got %v", err)
	}
	if err := a.SetActive(grantor, true, 1000); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if !a.Active {
		t.Fatal("expected active true")
	}
	if a.GrantorUpdateUnixTimestamp != 1000 {
		t.Fatalf("expected timestamp 1000, got %d", a.GrantorUpdateUnixTimestamp)
	}
	if !a.IsValidFor(grantor, grantee, []byte("train")) {
		t.Fatal("expected IsValidFor true once active")
	}
}

func TestUpdateDelegatesRequiresGrantee(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))

	d1, d2, d3 := wallet(10), wallet(11), wallet(12)
	if err := a.UpdateDelegates(grantor, false, []types.WalletKey{d1}); err != ErrNotGrantee {
		t.Fatalf("expected ErrNotGrantee, got %v", err)
	}
	if err := a.UpdateDelegates(grantee, false, []types.WalletKey{d1, d2}); err != nil {
		t.Fatalf("UpdateDelegates: %v", err)
	}
	if !a.IsDelegate(d1) || !a.IsDelegate(d2) {
		t.Fatal("expected d1 and d2 registered as delegates")
	}

	if err := a.UpdateDelegates(grantee, true, []types.WalletKey{d3}); err != nil {
		t.Fatalf("UpdateDelegates clear: %v", err)
	}
	if a.IsDelegate(d1) || a.IsDelegate(d2) {
		t.Fatal("expected d1 and d2 cleared")
	}
	if !a.IsDelegate(d3) {
		t.Fatal("expected d3 registered after clear+add")
	}
}

func TestSetDelegatesReplacesWholesale(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))

	d1, d2 := wallet(10), wallet(11)
	if err := a.SetDelegates(grantee, []types.WalletKey{d1}); err != nil {
		t.Fatalf("SetDelegates: %v", err)
	}
	if err := a.SetDelegates(grantee, []types.WalletKey{d2}); err != nil {
		t.Fatalf("SetDelegates: %v", err)
	}
	if a.IsDelegate(d1) {
		t.Fatal("expected d1 replaced")
	}
	if !a.IsDelegate(d2) {
		t.Fatal("expected d2 present")
	}
}

func TestCloseRequiresInactive(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))
	_ = a.SetActive(grantor, true, 0)

	if err := a.Close(grantee, 0); err != ErrNotGrantor {
		t.Fatalf("expected ErrNotGrantor, got %v", err)
	}
	if err := a.Close(grantor, 0); err != ErrAuthorizationActive {
		t.Fatalf("expected ErrAuthorizationActive, got %v", err)
	}
}

func TestCloseQuarantineBoundary(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))
	_ = a.SetActive(grantor, true, 1_000_000)
	_ = a.UpdateDelegates(grantee, false, []types.WalletKey{wallet(9)})
	_ = a.SetActive(grantor, false, 1_000_000)

	beforeQuarantine := int64(1_000_000 + quarantineSeconds - 1)
	if err := a.Close(grantor, beforeQuarantine); err != ErrQuarantinePeriodActive {
		t.Fatalf("expected ErrQuarantinePeriodActive, got %v", err)
	}

	atQuarantine := int64(1_000_000 + quarantineSeconds)
	if err := a.Close(grantor, atQuarantine); err != nil {
		t.Fatalf("expected Close to succeed once quarantine elapsed, got %v", err)
	}
}

func TestCloseWithNoDelegatesSkipsQuarantine(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))
	_ = a.SetActive(grantor, true, 1_000_000)
	_ = a.SetActive(grantor, false, 1_000_000)

	if err := a.Close(grantor, 1_000_001); err != nil {
		t.Fatalf("expected Close to succeed with no delegates, got %v", err)
	}
}

func TestRevokeBypassesActiveAndQuarantine(t *testing.T) {
	grantor, grantee := wallet(1), wallet(2)
	a := New(grantor, grantee, []byte("train"))
	_ = a.SetActive(grantor, true, 1_000_000)
	_ = a.UpdateDelegates(grantee, false, []types.WalletKey{wallet(9)})

	if err := a.Revoke(grantee); err != ErrNotGrantor {
		t.Fatalf("expected ErrNotGrantor, got %v", err)
	}
	if err := a.Revoke(grantor); err != nil {
		t.Fatalf("expected Revoke to succeed despite active+delegates, got %v", err)
	}
}
