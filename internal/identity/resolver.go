// Package identity resolves who this client is and whether it may act as the
// board admin.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"formboard/api/internal/localstore"
	"formboard/api/internal/session"
	"formboard/api/internal/store"
	"formboard/api/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Local store keys owned by the resolver.
const (
	KeyClientID        = "formboard.client_id"
	KeyDeviceName      = "formboard.device_name"
	KeyAdminCredential = "formboard.admin_pw"
)

type Resolver struct {
	local    localstore.Store
	remote   store.RemoteStore
	hashCost int
	now      func() time.Time
}

// NewResolver builds a resolver. remote is nil in local mode.
func NewResolver(local localstore.Store, remote store.RemoteStore, hashCost int) *Resolver {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	return &Resolver{
		local:    local,
		remote:   remote,
		hashCost: hashCost,
		now:      time.Now,
	}
}

// GetOrCreateClientIdentity loads the profile's identity, creating and
// persisting it on first use. It returns nil when the local store cannot be
// used; admin features are then unavailable for the session.
func (r *Resolver) GetOrCreateClientIdentity(ctx context.Context) *store.ClientIdentity {
	id, ok, err := r.local.Get(ctx, KeyClientID)
	if err != nil {
		log.WithError(err).Warn("identity: local store unavailable, running without client identity")
		return nil
	}
	if !ok || strings.TrimSpace(id) == "" {
		id = util.NewClientID(r.now())
		if err := r.local.Set(ctx, KeyClientID, id); err != nil {
			log.WithError(err).Warn("identity: persist client id failed")
			return nil
		}
		log.WithField("client_id", id).Info("identity: created client identity")
	}

	name, ok, err := r.local.Get(ctx, KeyDeviceName)
	if err != nil {
		log.WithError(err).Warn("identity: read device name failed")
		return nil
	}
	if !ok || strings.TrimSpace(name) == "" {
		name = util.DeviceName(id)
		if err := r.local.Set(ctx, KeyDeviceName, name); err != nil {
			log.WithError(err).Warn("identity: persist device name failed")
			return nil
		}
	}
	return &store.ClientIdentity{ID: id, DeviceName: name}
}

// IsAdmin reports admin status: the cached remote claim in remote mode, the
// session flag in local mode.
func (r *Resolver) IsAdmin(sess *session.Session) bool {
	identity := sess.Identity()
	if identity == nil {
		return false
	}
	if sess.Mode() == session.ModeRemote {
		claim := sess.Claim()
		return claim != nil && claim.AdminID == identity.ID
	}
	return sess.LocalAdmin()
}

func (r *Resolver) LocalAdminExists(ctx context.Context) bool {
	_, ok, err := r.local.Get(ctx, KeyAdminCredential)
	return err == nil && ok
}

// SetupLocalAdmin stores a new admin credential and signs the session in.
// An existing credential is overwritten; callers check LocalAdminExists first.
func (r *Resolver) SetupLocalAdmin(ctx context.Context, sess *session.Session, secret, confirm string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if secret != confirm {
		return ErrSecretMismatch
	}
	if sess.Identity() == nil {
		return ErrNoIdentity
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), r.hashCost)
	if err != nil {
		return fmt.Errorf("hash admin secret: %w", err)
	}
	if err := r.local.Set(ctx, KeyAdminCredential, string(hash)); err != nil {
		return fmt.Errorf("save admin credential: %w", err)
	}
	sess.SetLocalAdmin(true)
	return nil
}

// LoginLocalAdmin sets the session flag when secret matches the stored
// credential. A failed attempt leaves the flag as it was.
func (r *Resolver) LoginLocalAdmin(ctx context.Context, sess *session.Session, secret string) error {
	if sess.Identity() == nil {
		return ErrNoIdentity
	}
	stored, ok, err := r.local.Get(ctx, KeyAdminCredential)
	if err != nil {
		return fmt.Errorf("read admin credential: %w", err)
	}
	if !ok {
		return ErrNoCredentialSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)); err != nil {
		return ErrWrongSecret
	}
	sess.SetLocalAdmin(true)
	return nil
}

func (r *Resolver) LogoutLocalAdmin(sess *session.Session) {
	sess.SetLocalAdmin(false)
}

// ClaimAdmin makes this client the remote admin if, and only if, the admin
// slot is empty. The check and the write are one store transaction.
func (r *Resolver) ClaimAdmin(ctx context.Context, sess *session.Session) error {
	if r.remote == nil || sess.Mode() != session.ModeRemote {
		return ErrRemoteDisabled
	}
	identity := sess.Identity()
	if identity == nil {
		return ErrNoIdentity
	}

	claim := store.AdminClaim{
		AdminID:   identity.ID,
		AdminName: identity.DeviceName,
		ClaimedAt: r.now(),
	}
	err := r.remote.ClaimAdminSlot(ctx, claim)
	if errors.Is(err, store.ErrSlotTaken) {
		if current, getErr := r.remote.GetAdminClaim(ctx); getErr == nil {
			sess.SetClaim(current)
		}
		return ErrAlreadyClaimed
	}
	if err != nil {
		return fmt.Errorf("claim admin: %w", err)
	}

	sess.SetClaim(&claim)
	log.WithField("admin_id", claim.AdminID).Info("identity: claimed remote admin slot")
	return nil
}

// CanOfferClaim decides whether the claim action is shown. It is offered only
// to a remote-mode session that is signed in as local admin while the slot is
// empty. Anyone calling ClaimAdmin directly bypasses this.
func (r *Resolver) CanOfferClaim(sess *session.Session) bool {
	if r.remote == nil || sess.Mode() != session.ModeRemote {
		return false
	}
	if sess.Identity() == nil || r.IsAdmin(sess) {
		return false
	}
	return sess.Claim() == nil && sess.LocalAdmin()
}

// RefreshAdminClaim reloads the admin slot into the session cache.
func (r *Resolver) RefreshAdminClaim(ctx context.Context, sess *session.Session) error {
	if r.remote == nil {
		return nil
	}
	claim, err := r.remote.GetAdminClaim(ctx)
	if err != nil {
		return fmt.Errorf("refresh admin claim: %w", err)
	}
	sess.SetClaim(claim)
	return nil
}

// WatchAdminClaim keeps the session cache in step with the admin slot until
// ctx is cancelled.
func (r *Resolver) WatchAdminClaim(ctx context.Context, sess *session.Session) error {
	if r.remote == nil {
		return nil
	}
	updates, err := r.remote.WatchAdminClaim(ctx)
	if err != nil {
		return fmt.Errorf("watch admin claim: %w", err)
	}
	go func() {
		for claim := range updates {
			sess.SetClaim(claim)
		}
	}()
	return nil
}
