package session

import (
	"testing"

	"formboard/api/internal/store"
)

func TestIdentityIsCopied(t *testing.T) {
	sess := New(&store.ClientIdentity{ID: "1-abc", DeviceName: "Device-1-abc"}, ModeLocal)

	got := sess.Identity()
	got.DeviceName = "changed"

	if sess.Identity().DeviceName != "Device-1-abc" {
		t.Fatalf("identity leaked a mutable reference")
	}
}

func TestNilIdentity(t *testing.T) {
	sess := New(nil, ModeRemote)
	if sess.Identity() != nil {
		t.Fatal("expected nil identity")
	}
	if sess.Mode() != ModeRemote {
		t.Fatalf("expected remote mode, got %s", sess.Mode())
	}
}

func TestClaimCache(t *testing.T) {
	sess := New(nil, ModeRemote)
	if sess.Claim() != nil {
		t.Fatal("expected empty claim cache")
	}

	claim := &store.AdminClaim{AdminID: "a", AdminName: "Device-a"}
	sess.SetClaim(claim)
	claim.AdminID = "mutated"
	if got := sess.Claim(); got == nil || got.AdminID != "a" {
		t.Fatalf("expected cached claim for a, got %+v", got)
	}

	sess.SetClaim(nil)
	if sess.Claim() != nil {
		t.Fatal("expected cleared claim cache")
	}
}

func TestLocalAdminFlag(t *testing.T) {
	sess := New(nil, ModeLocal)
	sess.SetLocalAdmin(true)
	if !sess.LocalAdmin() {
		t.Fatal("expected flag set")
	}
	sess.SetLocalAdmin(false)
	if sess.LocalAdmin() {
		t.Fatal("expected flag cleared")
	}
}
