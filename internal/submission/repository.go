package submission

import (
	"context"
	"fmt"
	"time"

	"formboard/api/internal/identity"
	"formboard/api/internal/session"
	"formboard/api/internal/store"
	"formboard/api/internal/validate"
	log "github.com/sirupsen/logrus"
)

// AdminChecker decides whether a session may delete submissions.
type AdminChecker interface {
	IsAdmin(sess *session.Session) bool
}

type Repository struct {
	primary   Backend
	local     *LocalBackend
	validator *validate.Validator
	admin     AdminChecker
	now       func() time.Time
}

// NewRepository writes through primary. local receives entries when a remote
// primary rejects a write; pass the same backend twice in local mode.
func NewRepository(primary Backend, local *LocalBackend, validator *validate.Validator, admin AdminChecker) *Repository {
	if primary == nil {
		primary = local
	}
	return &Repository{
		primary:   primary,
		local:     local,
		validator: validator,
		admin:     admin,
		now:       time.Now,
	}
}

func (r *Repository) Mode() session.Mode {
	return r.primary.Mode()
}

// Submit validates fields and stores them as a new entry owned by the
// session's client. Invalid input returns a *validate.Error and stores nothing.
// A failed remote write is retried once against the local backend; that copy
// stays on this profile only.
func (r *Repository) Submit(ctx context.Context, sess *session.Session, fields map[string]string) (store.Submission, error) {
	cleaned, err := r.validator.Check(fields)
	if err != nil {
		return store.Submission{}, err
	}

	item := store.Submission{
		Name:       cleaned.Name,
		Gender:     cleaned.Gender,
		BirthDate:  cleaned.BirthDate,
		Address:    cleaned.Address,
		SocialLink: cleaned.SocialLink,
		Phone:      cleaned.Phone,
		Subject:    cleaned.Subject,
		CreatedAt:  r.now().UTC().Truncate(time.Microsecond),
	}
	if owner := sess.Identity(); owner != nil {
		item.OwnerID = owner.ID
		item.OwnerName = owner.DeviceName
	}

	saved, err := r.primary.Add(ctx, item)
	if err == nil {
		return saved, nil
	}
	if r.primary.Mode() != session.ModeRemote || r.local == nil {
		return store.Submission{}, fmt.Errorf("save submission: %w", err)
	}

	log.WithError(err).Warn("submission: remote write failed, saving locally")
	saved, localErr := r.local.Add(ctx, item)
	if localErr != nil {
		return store.Submission{}, fmt.Errorf("save submission: remote: %v; local: %w", err, localErr)
	}
	return saved, nil
}

// List returns entries newest first. A read failure is logged and shown as an
// empty board.
func (r *Repository) List(ctx context.Context) []store.Submission {
	items, err := r.primary.List(ctx)
	if err != nil {
		log.WithError(err).WithField("mode", r.primary.Mode()).Warn("submission: list failed")
		return []store.Submission{}
	}
	return items
}

// Watch streams snapshots of the board until ctx is cancelled. Calling it
// again after the channel closes resubscribes. When the backend cannot be
// subscribed to, the channel carries one empty board and is closed.
func (r *Repository) Watch(ctx context.Context) <-chan []store.Submission {
	updates, err := r.primary.Watch(ctx)
	if err == nil {
		return updates
	}
	log.WithError(err).WithField("mode", r.primary.Mode()).Warn("submission: watch failed")
	empty := make(chan []store.Submission, 1)
	empty <- []store.Submission{}
	close(empty)
	return empty
}

// Delete removes an entry. Only the admin may delete; the entry is left
// untouched otherwise.
func (r *Repository) Delete(ctx context.Context, sess *session.Session, id string) error {
	if r.admin == nil || !r.admin.IsAdmin(sess) {
		return identity.ErrNotAdmin
	}

	backend := r.primary
	if r.primary.Mode() == session.ModeRemote && r.local != nil && r.local.Has(ctx, id) {
		backend = r.local
	}
	if err := backend.Delete(ctx, id); err != nil {
		return err
	}
	log.WithFields(log.Fields{"id": id, "mode": backend.Mode()}).Info("submission: deleted")
	return nil
}
