package match

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the shared match table's database. The schema is
// created on demand; internal ids come from the table's own sequence.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS matches (
			internal_id      BIGSERIAL PRIMARY KEY,
			external_id      TEXT UNIQUE NOT NULL,
			host_id          TEXT NOT NULL,
			guest_id         TEXT,
			host_plays_white BOOLEAN NOT NULL,
			status           TEXT NOT NULL,
			end_method       TEXT,
			did_host_win     BOOLEAN,
			did_draw         BOOLEAN,
			join_secret      TEXT NOT NULL DEFAULT '',
			move_log_summary TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create matches table: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextInternalID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT nextval(pg_get_serial_sequence('matches', 'internal_id'))`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate internal id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO matches (
			internal_id, external_id, host_id, host_plays_white,
			status, join_secret, move_log_summary
		) VALUES ($1, $2, $3, $4, $5, $6, '')`
	_, err := s.db.ExecContext(ctx, query,
		rec.InternalID, rec.ExternalID, rec.HostID, rec.HostPlaysWhite,
		string(rec.Status), rec.JoinSecret,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateExternalID
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (*Record, error) {
	const query = `
		SELECT
			internal_id, external_id, host_id, guest_id, host_plays_white,
			status, end_method, did_host_win, did_draw,
			join_secret, move_log_summary, created_at, updated_at
		FROM matches
		WHERE external_id = $1`

	var (
		rec        Record
		guestID    sql.NullString
		endMethod  sql.NullString
		didHostWin sql.NullBool
		didDraw    sql.NullBool
		status     string
	)
	err := s.db.QueryRowContext(ctx, query, externalID).Scan(
		&rec.InternalID, &rec.ExternalID, &rec.HostID, &guestID, &rec.HostPlaysWhite,
		&status, &endMethod, &didHostWin, &didDraw,
		&rec.JoinSecret, &rec.MoveLogSummary, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select match: %w", err)
	}
	rec.Status = Status(status)
	rec.GuestID = guestID.String
	rec.EndMethod = EndMethod(endMethod.String)
	rec.DidHostWin = didHostWin.Bool
	rec.DidDraw = didDraw.Bool
	return &rec, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, externalID, guestID string) error {
	return s.exec(ctx, externalID, `
		UPDATE matches
		SET status = $2, guest_id = $3, updated_at = NOW()
		WHERE external_id = $1`, string(StatusActive), guestID)
}

func (s *PostgresStore) SetCancelled(ctx context.Context, externalID string) error {
	return s.exec(ctx, externalID, `
		UPDATE matches
		SET status = $2, updated_at = NOW()
		WHERE external_id = $1`, string(StatusCancelled))
}

func (s *PostgresStore) SetCompleted(ctx context.Context, externalID string, method EndMethod, didHostWin, didDraw bool, moveLog string) error {
	return s.exec(ctx, externalID, `
		UPDATE matches
		SET status = $2, end_method = $3, did_host_win = $4, did_draw = $5,
		    move_log_summary = $6, updated_at = NOW()
		WHERE external_id = $1`,
		string(StatusCompleted), string(method), didHostWin, didDraw, moveLog)
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) exec(ctx context.Context, externalID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append([]any{externalID}, args...)...)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
