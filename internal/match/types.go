package match

import (
	"context"
	"errors"
	"time"
)

// Status is the match lifecycle state. WAITING_FOR_OPPONENT is entered at
// creation; ACTIVE on a successful join; COMPLETED and CANCELLED are
// terminal. CANCELLED is reachable only from WAITING_FOR_OPPONENT and
// COMPLETED only from ACTIVE.
type Status string

const (
	StatusWaiting   Status = "WAITING_FOR_OPPONENT"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// EndMethod records how a completed match ended. Set exactly once, at the
// COMPLETED transition.
type EndMethod string

const (
	EndAutoResign       EndMethod = "AUTO_RESIGN"
	EndResign           EndMethod = "RESIGN"
	EndCheckmate        EndMethod = "CHECKMATE"
	EndDrawInsufficient EndMethod = "DRAW_INSUFFICIENT"
	EndDrawStalemate    EndMethod = "DRAW_STALEMATE"
)

// Record is one match's durable lifecycle row. GuestID is empty until an
// opponent joins. ExternalID is the only identifier exposed outside the
// core; InternalID never leaves the store layer and the id generator.
type Record struct {
	InternalID     int64
	ExternalID     string
	HostID         string
	GuestID        string
	HostPlaysWhite bool
	Status         Status
	EndMethod      EndMethod
	DidHostWin     bool
	DidDraw        bool
	JoinSecret     string
	MoveLogSummary string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Sentinel errors surfaced by the store and controller.
var (
	ErrNotFound             = errors.New("match not found")
	ErrPreconditionViolated = errors.New("match in wrong state for operation")
	ErrBadSecret            = errors.New("join secret mismatch")
	ErrDuplicateExternalID  = errors.New("external id already exists")
)

// Store is the durable match record store. Each method is a single atomic
// statement against the backing store; no cross-statement transactions are
// assumed.
type Store interface {
	// NextInternalID allocates a fresh internal id from the store-owned
	// sequence. Ids are monotonically increasing and never reused.
	NextInternalID(ctx context.Context) (int64, error)
	// Insert adds a new record. Returns ErrDuplicateExternalID when the
	// external id collides with an existing row.
	Insert(ctx context.Context, rec *Record) error
	// GetByExternalID returns nil, nil when the id is unknown.
	GetByExternalID(ctx context.Context, externalID string) (*Record, error)
	// SetActive records the joining guest and moves the match to ACTIVE.
	SetActive(ctx context.Context, externalID, guestID string) error
	SetCancelled(ctx context.Context, externalID string) error
	// SetCompleted writes the terminal outcome fields in one statement.
	SetCompleted(ctx context.Context, externalID string, method EndMethod, didHostWin, didDraw bool, moveLog string) error
}
