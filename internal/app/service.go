package app

import (
	"context"
	"net/http"
	"time"

	"formboard/api/internal/config"
	"formboard/api/internal/identity"
	"formboard/api/internal/localstore"
	"formboard/api/internal/rbac"
	"formboard/api/internal/session"
	"formboard/api/internal/store"
	"formboard/api/internal/submission"
	"formboard/api/internal/validate"
	log "github.com/sirupsen/logrus"
)

// SessionView is what the client shows about itself.
type SessionView struct {
	Mode             session.Mode      `json:"mode"`
	ClientID         string            `json:"clientId,omitempty"`
	DeviceName       string            `json:"deviceName,omitempty"`
	HasIdentity      bool              `json:"hasIdentity"`
	IsAdmin          bool              `json:"isAdmin"`
	LocalAdmin       bool              `json:"localAdmin"`
	LocalAdminExists bool              `json:"localAdminExists"`
	CanClaim         bool              `json:"canClaim"`
	Claim            *store.AdminClaim `json:"claim"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	local    localstore.Store
	remote   store.RemoteStore
	session  *session.Session
	resolver *identity.Resolver
	repo     *submission.Repository
}

// New wires the board for one client profile. The board runs in remote mode
// when remote is non-nil and in local mode otherwise; the mode does not change
// afterwards.
func New(ctx context.Context, cfg config.Config, local localstore.Store, remote store.RemoteStore) *Service {
	mode := session.ModeLocal
	if remote != nil {
		mode = session.ModeRemote
	}

	resolver := identity.NewResolver(local, remote, cfg.AdminHashCost)
	sess := session.New(resolver.GetOrCreateClientIdentity(ctx), mode)

	localBackend := submission.NewLocalBackend(local)
	var primary submission.Backend = localBackend
	if remote != nil {
		primary = submission.NewRemoteBackend(remote)
	}

	return &Service{
		local:    local,
		remote:   remote,
		session:  sess,
		resolver: resolver,
		repo:     submission.NewRepository(primary, localBackend, validate.New(nil), resolver),
	}
}

// ConnectRemote opens the configured remote store. It returns nil, and the
// board falls back to local mode, when none is configured or it cannot be
// reached.
func ConnectRemote(ctx context.Context, cfg config.Config) store.RemoteStore {
	if cfg.Remote == nil {
		log.Info("No remote store configured, running in local mode")
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	remote, err := store.OpenRemote(connectCtx, *cfg.Remote, cfg.MigrationsDir)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Remote.Driver).Warn("Remote store unavailable, running in local mode")
		return nil
	}
	log.WithField("driver", cfg.Remote.Driver).Info("Connected to remote store")
	return remote
}

// Bootstrap loads the admin slot and keeps it current until ctx is cancelled.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	if err := s.resolver.RefreshAdminClaim(ctx, s.session); err != nil {
		return err
	}
	return s.resolver.WatchAdminClaim(ctx, s.session)
}

func (s *Service) Mode() session.Mode {
	return s.session.Mode()
}

// Ping checks each configured store. The map holds one entry per store.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if p, ok := s.local.(pinger); ok {
		checks["local"] = p.Ping(ctx)
	} else {
		checks["local"] = localstore.ErrUnavailable
	}
	if s.remote != nil {
		checks["remote"] = s.remote.Ping(ctx)
	}
	return checks
}

func (s *Service) SessionView(ctx context.Context) SessionView {
	view := SessionView{
		Mode:             s.session.Mode(),
		IsAdmin:          s.resolver.IsAdmin(s.session),
		LocalAdmin:       s.session.LocalAdmin(),
		LocalAdminExists: s.resolver.LocalAdminExists(ctx),
		CanClaim:         s.resolver.CanOfferClaim(s.session),
		Claim:            s.session.Claim(),
	}
	if client := s.session.Identity(); client != nil {
		view.HasIdentity = true
		view.ClientID = client.ID
		view.DeviceName = client.DeviceName
	}
	return view
}

func (s *Service) SetupAdmin(ctx context.Context, secret, confirm string) error {
	return s.resolver.SetupLocalAdmin(ctx, s.session, secret, confirm)
}

func (s *Service) LoginAdmin(ctx context.Context, secret string) error {
	return s.resolver.LoginLocalAdmin(ctx, s.session, secret)
}

func (s *Service) LogoutAdmin() {
	s.resolver.LogoutLocalAdmin(s.session)
}

func (s *Service) ClaimAdmin(ctx context.Context) error {
	return s.resolver.ClaimAdmin(ctx, s.session)
}

func (s *Service) ListSubmissions(ctx context.Context) []store.Submission {
	return s.present(s.repo.List(ctx))
}

func (s *Service) Submit(ctx context.Context, fields map[string]string) (store.Submission, error) {
	saved, err := s.repo.Submit(ctx, s.session, fields)
	if err != nil {
		return store.Submission{}, err
	}
	return s.present([]store.Submission{saved})[0], nil
}

func (s *Service) DeleteSubmission(ctx context.Context, id string) error {
	if id == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "id is required", nil)
	}
	return s.repo.Delete(ctx, s.session, id)
}

// WatchSubmissions streams board snapshots, with owner fields hidden unless
// the client is admin at the time each snapshot is delivered.
func (s *Service) WatchSubmissions(ctx context.Context) <-chan []store.Submission {
	updates := s.repo.Watch(ctx)
	out := make(chan []store.Submission, 1)
	go func() {
		defer close(out)
		for items := range updates {
			store.PushLatest(out, s.present(items))
		}
	}()
	return out
}

// present hides ownership from clients that may not see it.
func (s *Service) present(items []store.Submission) []store.Submission {
	if rbac.Can(rbac.For(s.resolver.IsAdmin(s.session)), rbac.ActionViewOwner) {
		return items
	}
	out := make([]store.Submission, len(items))
	for i, item := range items {
		item.OwnerID = ""
		item.OwnerName = ""
		out[i] = item
	}
	return out
}

// Close releases the remote store connection.
func (s *Service) Close() error {
	if s.remote == nil {
		return nil
	}
	return s.remote.Close()
}
