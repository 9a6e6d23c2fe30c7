package live

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chessrelay/internal/match"
	"chessrelay/internal/obslog"
	"chessrelay/internal/rules"
)

// Manager hands out live session handles and owns the liveness thresholds.
// Sessions are created lazily in the store the first time a match is
// addressed and are never recreated once they exist.
type Manager struct {
	store           *Store
	matches         *match.Controller
	offlineAfter    time.Duration
	autoResignAfter time.Duration
	now             func() time.Time
}

func NewManager(rdb *redis.Client, matches *match.Controller, offlineAfter, autoResignAfter time.Duration) *Manager {
	if offlineAfter <= 0 {
		offlineAfter = 12 * time.Second
	}
	if autoResignAfter <= 0 {
		autoResignAfter = 180 * time.Second
	}
	return &Manager{
		store:           NewStore(rdb),
		matches:         matches,
		offlineAfter:    offlineAfter,
		autoResignAfter: autoResignAfter,
		now:             time.Now,
	}
}

// Session returns a handle for an already-joined match, initializing the
// live stores on first access. The position cache lives on the handle, so
// handles are cheap and per-request.
func (m *Manager) Session(ctx context.Context, externalID string) (*Session, error) {
	rec, err := m.matches.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if rec.Status != match.StatusActive && rec.Status != match.StatusCompleted {
		return nil, match.ErrPreconditionViolated
	}
	if err := m.store.EnsureInitialized(ctx, externalID, m.now()); err != nil {
		return nil, err
	}
	return &Session{
		externalID:     externalID,
		hostPlaysWhite: rec.HostPlaysWhite,
		mgr:            m,
	}, nil
}

// Session is a per-request handle on one match's live state.
type Session struct {
	externalID     string
	hostPlaysWhite bool
	mgr            *Manager

	cachedFEN string
}

// PlyCount is the number of applied moves; the synthetic seed row is not a
// ply.
func (s *Session) PlyCount(ctx context.Context) (int, error) {
	n, err := s.mgr.store.MoveCount(ctx, s.externalID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotInitialized
	}
	return n - 1, nil
}

// Position is the FEN of the highest ledger row, cached on the handle
// until ApplyMove invalidates it.
func (s *Session) Position(ctx context.Context) (string, error) {
	if s.cachedFEN != "" {
		return s.cachedFEN, nil
	}
	last, err := s.mgr.store.LastMove(ctx, s.externalID)
	if err != nil {
		return "", err
	}
	s.cachedFEN = last.FEN
	return s.cachedFEN, nil
}

// IsHostTurn derives turn ownership from move parity: white moves on even
// ply counts, and the host owns white iff HostPlaysWhite.
func (s *Session) IsHostTurn(ctx context.Context) (bool, error) {
	ply, err := s.PlyCount(ctx)
	if err != nil {
		return false, err
	}
	return (ply%2 == 0) == s.hostPlaysWhite, nil
}

func (s *Session) sidePlaysWhite(side Side) bool {
	if side == SideHost {
		return s.hostPlaysWhite
	}
	return !s.hostPlaysWhite
}

// ApplyMove validates and applies one move for the given side. It is the
// only mutator of the position. An illegal move leaves the ledger and
// position untouched and returns ErrIllegalMove. A move that ends the game
// writes the heartbeat terminal fields and completes the match record.
func (s *Session) ApplyMove(ctx context.Context, side Side, from, to, promotion string) (*MoveOutcome, error) {
	hb, err := s.mgr.store.ReadHeartbeat(ctx, s.externalID)
	if err != nil {
		return nil, err
	}
	if hb.Status.Terminal() {
		return nil, ErrGameOver
	}
	hostTurn, err := s.IsHostTurn(ctx)
	if err != nil {
		return nil, err
	}
	if hostTurn != (side == SideHost) {
		return nil, ErrNotYourTurn
	}

	fen, err := s.Position(ctx)
	if err != nil {
		return nil, err
	}
	owns, err := rules.OwnsPiece(fen, s.sidePlaysWhite(side), from)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, ErrIllegalMove
	}
	res, err := rules.Apply(fen, from, to, promotion)
	if errors.Is(err, rules.ErrNoLegalMove) {
		return nil, ErrIllegalMove
	}
	if err != nil {
		return nil, err
	}

	// The rules work above leaves a window; re-check so the move cannot
	// land on a game a concurrent check-in just ended.
	hb, err = s.mgr.store.ReadHeartbeat(ctx, s.externalID)
	if err != nil {
		return nil, err
	}
	if hb.Status.Terminal() {
		return nil, ErrGameOver
	}

	number, err := s.mgr.store.MoveCount(ctx, s.externalID)
	if err != nil {
		return nil, err
	}
	rec := MoveRecord{
		Number:     number,
		Timestamp:  s.mgr.now().Unix(),
		FromSquare: strings.ToLower(strings.TrimSpace(from)),
		ToSquare:   strings.ToLower(strings.TrimSpace(to)),
		FEN:        res.FEN,
	}
	if err := s.mgr.store.AppendMove(ctx, s.externalID, rec); err != nil {
		return nil, err
	}
	s.cachedFEN = res.FEN

	status := StatusActive
	switch {
	case res.Checkmate:
		status = StatusCheckmated
		if err := s.endGame(ctx, status, winnerOf(side), match.EndCheckmate, side == SideHost, false); err != nil {
			return nil, err
		}
	case res.Stalemate:
		status = StatusDrawStalemate
		if err := s.endGame(ctx, status, WinnerUndetermined, match.EndDrawStalemate, false, true); err != nil {
			return nil, err
		}
	case res.InsufficientMaterial:
		status = StatusDrawInsufficient
		if err := s.endGame(ctx, status, WinnerUndetermined, match.EndDrawInsufficient, false, true); err != nil {
			return nil, err
		}
	}

	obslog.L().Info("live_move",
		zap.String("external_id", s.externalID),
		zap.String("side", string(side)),
		zap.String("from", rec.FromSquare),
		zap.String("to", rec.ToSquare),
		zap.Int("ply", rec.Number),
		zap.String("status", string(status)),
	)
	return &MoveOutcome{FEN: res.FEN, Ply: rec.Number, Status: status}, nil
}

// CheckIn records the caller's heartbeat and reports the session state.
// The auto-resign sweep runs before anything is reported, so a lagging
// opponent is resolved by the caller's own poll even when no move occurs.
func (s *Session) CheckIn(ctx context.Context, side Side) (*CheckInReport, error) {
	now := s.mgr.now()
	if err := s.mgr.store.RecordHeartbeat(ctx, s.externalID, side, now); err != nil {
		return nil, err
	}
	hb, err := s.mgr.store.ReadHeartbeat(ctx, s.externalID)
	if err != nil {
		return nil, err
	}

	if !hb.Status.Terminal() {
		if now.Sub(hb.LastSeen(side.Opponent())) >= s.mgr.autoResignAfter {
			if err := s.endGame(ctx, StatusAutoResigned, winnerOf(side), match.EndAutoResign, side == SideHost, false); err != nil {
				return nil, err
			}
			obslog.L().Info("live_auto_resign",
				zap.String("external_id", s.externalID),
				zap.String("winner", string(side)),
			)
			hb, err = s.mgr.store.ReadHeartbeat(ctx, s.externalID)
			if err != nil {
				return nil, err
			}
		}
	} else if err := s.reconcile(ctx, hb); err != nil {
		return nil, err
	}

	report := &CheckInReport{
		Status:  hb.Status,
		Winner:  hb.Winner,
		DidWin:  hb.Winner != WinnerUndetermined && hb.Winner == winnerOf(side),
		DidDraw: hb.Status.Draw(),
	}
	elapsed := now.Sub(hb.LastSeen(side.Opponent()))
	report.OpponentSecondsAgo = int64(elapsed / time.Second)
	report.OpponentOffline = elapsed >= s.mgr.offlineAfter
	if !hb.Status.Terminal() {
		hostTurn, err := s.IsHostTurn(ctx)
		if err != nil {
			return nil, err
		}
		report.YourTurn = hostTurn == (side == SideHost)
	}
	if report.FEN, err = s.Position(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// Resign is a voluntary loss for the calling side.
func (s *Session) Resign(ctx context.Context, side Side) error {
	hb, err := s.mgr.store.ReadHeartbeat(ctx, s.externalID)
	if err != nil {
		return err
	}
	if hb.Status.Terminal() {
		return ErrGameOver
	}
	opponent := side.Opponent()
	if err := s.endGame(ctx, StatusResigned, winnerOf(opponent), match.EndResign, opponent == SideHost, false); err != nil {
		return err
	}
	obslog.L().Info("live_resign",
		zap.String("external_id", s.externalID),
		zap.String("resigner", string(side)),
	)
	return nil
}

// endGame performs the two-store terminal write: heartbeat first (the
// authority for in-match UI), then the match record. The heartbeat write
// is the single end-of-game event: when it loses a concurrent terminal
// race, the earlier writer's outcome is copied to the match record instead
// of the caller's, so both stores always describe the same ending. The
// writes are not transactional; a crash between them leaves a window that
// reconcile closes on a later check-in.
func (s *Session) endGame(ctx context.Context, status LiveStatus, winner Winner, method match.EndMethod, didHostWin, didDraw bool) error {
	applied, err := s.mgr.store.MarkTerminal(ctx, s.externalID, status, winner)
	if err != nil {
		return err
	}
	if !applied {
		hb, err := s.mgr.store.ReadHeartbeat(ctx, s.externalID)
		if err != nil {
			return err
		}
		return s.completeFromHeartbeat(ctx, hb)
	}
	summary, err := s.moveSummary(ctx)
	if err != nil {
		return err
	}
	return s.mgr.matches.Complete(ctx, s.externalID, method, didHostWin, didDraw, summary)
}

// reconcile back-fills the match record when the heartbeat already holds a
// terminal status but the lifecycle record still reads ACTIVE (the
// recognized dual-write inconsistency window).
func (s *Session) reconcile(ctx context.Context, hb *Heartbeat) error {
	status, err := s.mgr.matches.Status(ctx, s.externalID)
	if err != nil {
		return err
	}
	if status != match.StatusActive {
		return nil
	}
	obslog.L().Warn("live_reconcile_completion",
		zap.String("external_id", s.externalID),
		zap.String("live_status", string(hb.Status)),
	)
	return s.completeFromHeartbeat(ctx, hb)
}

// completeFromHeartbeat writes the match record's outcome from the
// heartbeat record's terminal fields. Complete is a no-op on an already
// COMPLETED match, so this never overwrites a recorded outcome.
func (s *Session) completeFromHeartbeat(ctx context.Context, hb *Heartbeat) error {
	summary, err := s.moveSummary(ctx)
	if err != nil {
		return err
	}
	return s.mgr.matches.Complete(ctx, s.externalID,
		endMethodFor(hb.Status), hb.Winner == WinnerHost, hb.Status.Draw(), summary)
}

func endMethodFor(status LiveStatus) match.EndMethod {
	switch status {
	case StatusAutoResigned:
		return match.EndAutoResign
	case StatusResigned:
		return match.EndResign
	case StatusCheckmated:
		return match.EndCheckmate
	case StatusDrawInsufficient:
		return match.EndDrawInsufficient
	default:
		return match.EndDrawStalemate
	}
}

// moveSummary renders the ledger as the denormalized square-pair text kept
// on the match record.
func (s *Session) moveSummary(ctx context.Context) (string, error) {
	moves, err := s.mgr.store.Moves(ctx, s.externalID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(moves))
	for _, mv := range moves {
		if mv.Number == 0 {
			continue
		}
		parts = append(parts, mv.FromSquare+mv.ToSquare)
	}
	return strings.Join(parts, " "), nil
}
