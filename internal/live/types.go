package live

import (
	"errors"
	"time"
)

// Side identifies a participant relative to the match record. The request
// layer authenticates who is host and who is guest; the core trusts it.
type Side string

const (
	SideHost  Side = "host"
	SideGuest Side = "guest"
)

func (s Side) Opponent() Side {
	if s == SideHost {
		return SideGuest
	}
	return SideHost
}

// Winner is the heartbeat record's tri-state winner flag.
type Winner string

const (
	WinnerUndetermined Winner = ""
	WinnerHost         Winner = "host"
	WinnerGuest        Winner = "guest"
)

func winnerOf(side Side) Winner {
	if side == SideHost {
		return WinnerHost
	}
	return WinnerGuest
}

// LiveStatus is the fine-grained state of an active match. It moves
// forward from ACTIVE to exactly one terminal value and never reverts.
type LiveStatus string

const (
	StatusActive           LiveStatus = "ACTIVE"
	StatusAutoResigned     LiveStatus = "AUTO_RESIGNED"
	StatusResigned         LiveStatus = "RESIGNED"
	StatusCheckmated       LiveStatus = "CHECKMATED"
	StatusDrawInsufficient LiveStatus = "DRAW_INSUFFICIENT"
	StatusDrawStalemate    LiveStatus = "DRAW_STALEMATE"
)

func (s LiveStatus) Terminal() bool {
	return s != StatusActive && s != ""
}

func (s LiveStatus) Draw() bool {
	return s == StatusDrawInsufficient || s == StatusDrawStalemate
}

// MoveRecord is one row of the move ledger. Row 0 is synthetic: it holds
// the starting position and empty squares, so Number doubles as ply count.
type MoveRecord struct {
	Number     int    `json:"move_number"`
	Timestamp  int64  `json:"timestamp"`
	FromSquare string `json:"from_square"`
	ToSquare   string `json:"to_square"`
	FEN        string `json:"resulting_position"`
}

// Heartbeat is the single logical liveness/outcome row kept per match.
type Heartbeat struct {
	HostLastSeen  time.Time
	GuestLastSeen time.Time
	Winner        Winner
	Status        LiveStatus
}

func (h *Heartbeat) LastSeen(side Side) time.Time {
	if side == SideHost {
		return h.HostLastSeen
	}
	return h.GuestLastSeen
}

// MoveOutcome reports the result of a successfully applied move.
type MoveOutcome struct {
	FEN    string
	Ply    int
	Status LiveStatus
}

// CheckInReport is what a polling client learns from one check-in.
type CheckInReport struct {
	Status             LiveStatus
	Winner             Winner
	YourTurn           bool
	DidWin             bool
	DidDraw            bool
	OpponentSecondsAgo int64
	OpponentOffline    bool
	FEN                string
}

var (
	// ErrIllegalMove reports a move rejected by the rules engine; no state
	// was mutated and only the submitter should see the failure.
	ErrIllegalMove = errors.New("illegal move")
	// ErrNotYourTurn reports a move submitted out of turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrGameOver reports a live-play operation against a finished match.
	ErrGameOver = errors.New("game already over")
	// ErrNotInitialized reports a read against a session that has no
	// ledger yet. Session construction prevents this in normal flow.
	ErrNotInitialized = errors.New("live session not initialized")
)
