package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"formboard/api/internal/util"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

const pgSerializationFailure = "40001"

// PostgresStore implements RemoteStore on PostgreSQL. Change notification uses
// pg_notify inside the writing transaction and a dedicated LISTEN connection
// per subscription.
type PostgresStore struct {
	db          *sql.DB
	databaseURL string
	channel     string
}

func NewPostgresStore(db *sql.DB, databaseURL, prefix string) *PostgresStore {
	if prefix == "" {
		prefix = "formboard"
	}
	return &PostgresStore{
		db:          db,
		databaseURL: databaseURL,
		channel:     strings.ReplaceAll(prefix, ":", "_") + "_events",
	}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) AddSubmission(ctx context.Context, item Submission) (string, error) {
	item.ID = util.NewDocumentID()
	// timestamptz stores microseconds.
	item.CreatedAt = item.CreatedAt.UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeError("postgres", "begin add submission", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions (id, name, gender, birth_date, address, social_link, phone, subject, owner_id, owner_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.Name, item.Gender, item.BirthDate, item.Address, item.SocialLink, item.Phone, item.Subject, item.OwnerID, item.OwnerName, item.CreatedAt)
	if err != nil {
		return "", storeError("postgres", "insert submission", err)
	}
	if err := s.notify(ctx, tx, eventSubmissions); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", storeError("postgres", "commit submission", err)
	}
	return item.ID, nil
}

func (s *PostgresStore) DeleteSubmission(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("postgres", "begin delete submission", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id=$1`, id)
	if err != nil {
		return storeError("postgres", "delete submission", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if err := s.notify(ctx, tx, eventSubmissions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("postgres", "commit delete submission", err)
	}
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, gender, birth_date, address, social_link, phone, subject, owner_id, owner_name, created_at
		FROM submissions
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, storeError("postgres", "list submissions", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.Name, &item.Gender, &item.BirthDate, &item.Address, &item.SocialLink, &item.Phone, &item.Subject, &item.OwnerID, &item.OwnerName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("postgres", "iterate submissions", err)
	}
	return items, nil
}

func (s *PostgresStore) WatchSubmissions(ctx context.Context) (<-chan []Submission, error) {
	out := make(chan []Submission, 1)
	push := func() {
		items, err := s.ListSubmissions(ctx)
		if err != nil {
			log.WithError(err).Warn("postgres store: refresh submissions snapshot failed")
			return
		}
		PushLatest(out, items)
	}
	if err := s.watch(ctx, eventSubmissions, push, func() { close(out) }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetAdminClaim(ctx context.Context) (*AdminClaim, error) {
	var claim AdminClaim
	err := s.db.QueryRowContext(ctx, `
		SELECT admin_id, admin_name, claimed_at FROM admin_slot WHERE slot='admin'
	`).Scan(&claim.AdminID, &claim.AdminName, &claim.ClaimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("postgres", "get admin claim", err)
	}
	return &claim, nil
}

func (s *PostgresStore) WatchAdminClaim(ctx context.Context) (<-chan *AdminClaim, error) {
	out := make(chan *AdminClaim, 1)
	push := func() {
		claim, err := s.GetAdminClaim(ctx)
		if err != nil {
			log.WithError(err).Warn("postgres store: refresh admin slot failed")
			return
		}
		PushLatest(out, claim)
	}
	if err := s.watch(ctx, eventAdminSlot, push, func() { close(out) }); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimAdminSlot checks and fills the slot inside one serializable
// transaction. The primary key on admin_slot turns a concurrent insert into a
// no-op, and serialization failures are retried so the loser re-reads the
// winner's row.
func (s *PostgresStore) ClaimAdminSlot(ctx context.Context, claim AdminClaim) error {
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now()
	}
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := s.claimOnce(ctx, claim)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
			continue
		}
		return err
	}
	return storeError("postgres", "claim admin slot", errors.New("too much contention on admin slot"))
}

func (s *PostgresStore) claimOnce(ctx context.Context, claim AdminClaim) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storeError("postgres", "begin claim", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT admin_id FROM admin_slot WHERE slot='admin'`).Scan(&existing)
	if err == nil {
		return ErrSlotTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storeError("postgres", "read admin slot", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO admin_slot (slot, admin_id, admin_name, claimed_at)
		VALUES ('admin', $1, $2, $3)
		ON CONFLICT (slot) DO NOTHING
	`, claim.AdminID, claim.AdminName, claim.ClaimedAt.UTC())
	if err != nil {
		return storeError("postgres", "write admin slot", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSlotTaken
	}
	if err := s.notify(ctx, tx, eventAdminSlot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("postgres", "commit claim", err)
	}
	return nil
}

func (s *PostgresStore) notify(ctx context.Context, tx *sql.Tx, event string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, s.channel, event); err != nil {
		return storeError("postgres", "notify "+event, err)
	}
	return nil
}

// watch opens a LISTEN connection, calls push once, then again for every
// notification carrying event. done runs when the listener exits.
func (s *PostgresStore) watch(ctx context.Context, event string, push func(), done func()) error {
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return storeError("postgres", "connect listener", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return storeError("postgres", "listen", err)
	}

	go func() {
		defer done()
		defer conn.Close(context.Background())

		push()
		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("postgres store: listener stopped")
				}
				return
			}
			if notification.Payload == event {
				push()
			}
		}
	}()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
