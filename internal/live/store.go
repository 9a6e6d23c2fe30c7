package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chessrelay/internal/rules"
)

// Store persists one live session per match in redis: a list of move
// ledger rows and a hash holding the single logical heartbeat row. Keys
// carry no TTL; retention is an external policy, not the core's.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func keyInit(id string) string    { return "match:" + id + ":init" }
func keyMoves(id string) string   { return "match:" + id + ":moves" }
func keyCheckIn(id string) string { return "match:" + id + ":checkin" }

const (
	fieldHostSeen  = "host_last_seen"
	fieldGuestSeen = "guest_last_seen"
	fieldWinner    = "winner"
	fieldStatus    = "status"
)

// EnsureInitialized creates the move ledger (seeded with the synthetic
// starting row) and the heartbeat record. Idempotent: a SetNX marker
// guards against re-initialization, so an existing session is never reset.
func (s *Store) EnsureInitialized(ctx context.Context, id string, now time.Time) error {
	created, err := s.rdb.SetNX(ctx, keyInit(id), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("init marker: %w", err)
	}
	if !created {
		return nil
	}
	seed, err := json.Marshal(MoveRecord{
		Number:    0,
		Timestamp: now.Unix(),
		FEN:       rules.StartingFEN,
	})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, keyMoves(id), seed)
	pipe.HSet(ctx, keyCheckIn(id),
		fieldHostSeen, now.Unix(),
		fieldGuestSeen, now.Unix(),
		fieldWinner, string(WinnerUndetermined),
		fieldStatus, string(StatusActive),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed live session: %w", err)
	}
	return nil
}

func (s *Store) AppendMove(ctx context.Context, id string, rec MoveRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, keyMoves(id), raw).Err(); err != nil {
		return fmt.Errorf("append move: %w", err)
	}
	return nil
}

func (s *Store) MoveCount(ctx context.Context, id string) (int, error) {
	n, err := s.rdb.LLen(ctx, keyMoves(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("count moves: %w", err)
	}
	return int(n), nil
}

func (s *Store) LastMove(ctx context.Context, id string) (*MoveRecord, error) {
	raw, err := s.rdb.LIndex(ctx, keyMoves(id), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("read last move: %w", err)
	}
	var rec MoveRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Moves(ctx context.Context, id string) ([]MoveRecord, error) {
	rows, err := s.rdb.LRange(ctx, keyMoves(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read moves: %w", err)
	}
	out := make([]MoveRecord, 0, len(rows))
	for _, raw := range rows {
		var rec MoveRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) RecordHeartbeat(ctx context.Context, id string, side Side, at time.Time) error {
	field := fieldGuestSeen
	if side == SideHost {
		field = fieldHostSeen
	}
	if err := s.rdb.HSet(ctx, keyCheckIn(id), field, at.Unix()).Err(); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

func (s *Store) ReadHeartbeat(ctx context.Context, id string) (*Heartbeat, error) {
	fields, err := s.rdb.HGetAll(ctx, keyCheckIn(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read heartbeat: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotInitialized
	}
	hb := &Heartbeat{
		Winner: Winner(fields[fieldWinner]),
		Status: LiveStatus(fields[fieldStatus]),
	}
	if v, err := strconv.ParseInt(fields[fieldHostSeen], 10, 64); err == nil {
		hb.HostLastSeen = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(fields[fieldGuestSeen], 10, 64); err == nil {
		hb.GuestLastSeen = time.Unix(v, 0)
	}
	return hb, nil
}

// MarkTerminal moves the heartbeat record's status forward to a terminal
// value. The transition runs under WATCH: once a terminal status is
// observed the write is skipped, so a race between both sides' check-ins
// resolves to whichever terminal write landed first.
func (s *Store) MarkTerminal(ctx context.Context, id string, status LiveStatus, winner Winner) (bool, error) {
	key := keyCheckIn(id)
	applied := false
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldStatus).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if LiveStatus(current).Terminal() {
			return nil
		}
		pipe := tx.TxPipeline()
		pipe.HSet(ctx, key, fieldStatus, string(status), fieldWinner, string(winner))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		applied = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Concurrent transition won the race; treat as already terminal.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark terminal: %w", err)
	}
	return applied, nil
}
