package identity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"formboard/api/internal/localstore"
	"formboard/api/internal/session"
	"formboard/api/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func openProfile(t *testing.T) *localstore.SQLiteStore {
	t.Helper()
	profile, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = profile.Close() })
	return profile
}

func openRemote(t *testing.T) *store.RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	remote, err := store.NewRedisStore("redis://"+s.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })
	return remote
}

func newLocalClient(t *testing.T) (*Resolver, *session.Session) {
	t.Helper()
	r := NewResolver(openProfile(t), nil, bcrypt.MinCost)
	return r, session.New(r.GetOrCreateClientIdentity(context.Background()), session.ModeLocal)
}

func newRemoteClient(t *testing.T, remote store.RemoteStore) (*Resolver, *session.Session) {
	t.Helper()
	r := NewResolver(openProfile(t), remote, bcrypt.MinCost)
	return r, session.New(r.GetOrCreateClientIdentity(context.Background()), session.ModeRemote)
}

func TestGetOrCreateClientIdentityIsStable(t *testing.T) {
	r := NewResolver(openProfile(t), nil, bcrypt.MinCost)
	ctx := context.Background()

	first := r.GetOrCreateClientIdentity(ctx)
	require.NotNil(t, first)
	second := r.GetOrCreateClientIdentity(ctx)
	require.NotNil(t, second)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^\d+-[0-9a-z]{7}$`, first.ID)
	assert.Equal(t, "Device-"+first.ID[len(first.ID)-6:], first.DeviceName)
}

func TestGetOrCreateClientIdentityKeepsStoredDeviceName(t *testing.T) {
	profile := openProfile(t)
	ctx := context.Background()
	require.NoError(t, profile.Set(ctx, KeyClientID, "1700000000000-abc1234"))
	require.NoError(t, profile.Set(ctx, KeyDeviceName, "Front desk"))

	identity := NewResolver(profile, nil, bcrypt.MinCost).GetOrCreateClientIdentity(ctx)

	require.NotNil(t, identity)
	assert.Equal(t, "1700000000000-abc1234", identity.ID)
	assert.Equal(t, "Front desk", identity.DeviceName)
}

func TestGetOrCreateClientIdentityWithoutLocalStore(t *testing.T) {
	r := NewResolver(localstore.Unavailable{}, nil, bcrypt.MinCost)
	ctx := context.Background()

	identity := r.GetOrCreateClientIdentity(ctx)
	assert.Nil(t, identity)

	sess := session.New(identity, session.ModeLocal)
	assert.False(t, r.IsAdmin(sess))
	assert.False(t, r.LocalAdminExists(ctx))
	assert.ErrorIs(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"), ErrNoIdentity)
	assert.ErrorIs(t, r.LoginLocalAdmin(ctx, sess, "secret1"), ErrNoIdentity)
}

func TestSetupLocalAdminRejectsBadInput(t *testing.T) {
	r, sess := newLocalClient(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.SetupLocalAdmin(ctx, sess, "", ""), ErrEmptySecret)
	assert.ErrorIs(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret2"), ErrSecretMismatch)
	assert.False(t, r.LocalAdminExists(ctx))
	assert.False(t, sess.LocalAdmin())
}

func TestLocalAdminSetupLoginLogout(t *testing.T) {
	r, sess := newLocalClient(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.LoginLocalAdmin(ctx, sess, "secret1"), ErrNoCredentialSet)

	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"))
	assert.True(t, r.LocalAdminExists(ctx))
	assert.True(t, r.IsAdmin(sess))

	stored, ok, err := r.local.Get(ctx, KeyAdminCredential)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, "secret1", stored)

	r.LogoutLocalAdmin(sess)
	r.LogoutLocalAdmin(sess)
	assert.False(t, r.IsAdmin(sess))

	require.NoError(t, r.LoginLocalAdmin(ctx, sess, "secret1"))
	assert.True(t, r.IsAdmin(sess))
}

func TestLoginWrongSecretKeepsFlag(t *testing.T) {
	r, sess := newLocalClient(t)
	ctx := context.Background()
	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"))
	r.LogoutLocalAdmin(sess)

	assert.ErrorIs(t, r.LoginLocalAdmin(ctx, sess, "nope"), ErrWrongSecret)
	assert.False(t, sess.LocalAdmin())

	require.NoError(t, r.LoginLocalAdmin(ctx, sess, "secret1"))
	assert.ErrorIs(t, r.LoginLocalAdmin(ctx, sess, "nope"), ErrWrongSecret)
	assert.True(t, sess.LocalAdmin())
}

func TestSetupOverwritesCredential(t *testing.T) {
	r, sess := newLocalClient(t)
	ctx := context.Background()
	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"))
	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret2", "secret2"))

	assert.ErrorIs(t, r.LoginLocalAdmin(ctx, sess, "secret1"), ErrWrongSecret)
	assert.NoError(t, r.LoginLocalAdmin(ctx, sess, "secret2"))
}

func TestClaimAdminRequiresRemote(t *testing.T) {
	r, sess := newLocalClient(t)

	assert.ErrorIs(t, r.ClaimAdmin(context.Background(), sess), ErrRemoteDisabled)
	assert.False(t, r.CanOfferClaim(sess))
}

func TestClaimAdminSingleWinner(t *testing.T) {
	remote := openRemote(t)
	ctx := context.Background()
	alice, aliceSess := newRemoteClient(t, remote)
	bob, bobSess := newRemoteClient(t, remote)

	require.NoError(t, alice.ClaimAdmin(ctx, aliceSess))
	assert.True(t, alice.IsAdmin(aliceSess))

	err := bob.ClaimAdmin(ctx, bobSess)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.False(t, bob.IsAdmin(bobSess))

	claim := bobSess.Claim()
	require.NotNil(t, claim)
	assert.Equal(t, aliceSess.Identity().ID, claim.AdminID)
	assert.Equal(t, aliceSess.Identity().DeviceName, claim.AdminName)
}

func TestClaimAdminConcurrentClients(t *testing.T) {
	remote := openRemote(t)
	ctx := context.Background()

	const clients = 8
	resolvers := make([]*Resolver, clients)
	sessions := make([]*session.Session, clients)
	for i := range resolvers {
		resolvers[i], sessions[i] = newRemoteClient(t, remote)
	}

	var wg sync.WaitGroup
	results := make([]error, clients)
	for i := range resolvers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = resolvers[i].ClaimAdmin(ctx, sessions[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		if err == nil {
			winners++
			assert.True(t, resolvers[i].IsAdmin(sessions[i]))
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyClaimed), "unexpected error: %v", err)
		assert.False(t, resolvers[i].IsAdmin(sessions[i]))
	}
	assert.Equal(t, 1, winners)
}

func TestCanOfferClaim(t *testing.T) {
	remote := openRemote(t)
	ctx := context.Background()
	r, sess := newRemoteClient(t, remote)

	assert.False(t, r.CanOfferClaim(sess), "not signed in as local admin")

	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"))
	assert.True(t, r.CanOfferClaim(sess))

	require.NoError(t, r.ClaimAdmin(ctx, sess))
	assert.False(t, r.CanOfferClaim(sess), "already admin")

	other, otherSess := newRemoteClient(t, remote)
	require.NoError(t, other.SetupLocalAdmin(ctx, otherSess, "secret1", "secret1"))
	require.NoError(t, other.RefreshAdminClaim(ctx, otherSess))
	assert.False(t, other.CanOfferClaim(otherSess), "slot taken")
}

func TestRemoteAdminIgnoresLocalFlag(t *testing.T) {
	remote := openRemote(t)
	ctx := context.Background()
	r, sess := newRemoteClient(t, remote)

	require.NoError(t, r.SetupLocalAdmin(ctx, sess, "secret1", "secret1"))
	assert.False(t, r.IsAdmin(sess))
}

func TestWatchAdminClaimUpdatesSession(t *testing.T) {
	remote := openRemote(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, watcherSess := newRemoteClient(t, remote)
	require.NoError(t, watcher.WatchAdminClaim(ctx, watcherSess))

	claimer, claimerSess := newRemoteClient(t, remote)
	require.NoError(t, claimer.ClaimAdmin(ctx, claimerSess))

	require.Eventually(t, func() bool {
		claim := watcherSess.Claim()
		return claim != nil && claim.AdminID == claimerSess.Identity().ID
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, watcher.IsAdmin(watcherSess))
}
