package match

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chessrelay/internal/gameid"
	"chessrelay/internal/obslog"
)

// maxIDAttempts bounds the regenerate-on-collision loop. The generator is
// not collision-free by construction; the unique constraint is the guard.
const maxIDAttempts = 5

// Controller owns the match lifecycle state machine. Every transition is
// re-validated here against the stored state, so a stale or misbehaving
// request layer cannot drive an illegal transition.
type Controller struct {
	store Store
}

func NewController(store Store) *Controller {
	return &Controller{store: store}
}

// Create inserts a new WAITING_FOR_OPPONENT match and returns its external
// id. joinSecret may be empty, meaning anyone with the id can join.
func (c *Controller) Create(ctx context.Context, hostID string, hostPlaysWhite bool, joinSecret string) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		internalID, err := c.store.NextInternalID(ctx)
		if err != nil {
			return "", err
		}
		externalID := gameid.Generate(internalID)
		rec := &Record{
			InternalID:     internalID,
			ExternalID:     externalID,
			HostID:         hostID,
			HostPlaysWhite: hostPlaysWhite,
			Status:         StatusWaiting,
			JoinSecret:     joinSecret,
		}
		err = c.store.Insert(ctx, rec)
		if errors.Is(err, ErrDuplicateExternalID) {
			continue
		}
		if err != nil {
			return "", err
		}
		obslog.L().Info("match_create",
			zap.String("external_id", externalID),
			zap.String("host_id", hostID),
			zap.Bool("host_plays_white", hostPlaysWhite),
			zap.Bool("has_secret", joinSecret != ""),
		)
		return externalID, nil
	}
	return "", fmt.Errorf("could not allocate a unique external id after %d attempts", maxIDAttempts)
}

// Join moves a WAITING match to ACTIVE and records the guest. Returns
// whether the joiner plays white (the complement of the host's color).
func (c *Controller) Join(ctx context.Context, externalID, guestID, secret string) (bool, error) {
	rec, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, ErrNotFound
	}
	if rec.Status != StatusWaiting {
		return false, ErrPreconditionViolated
	}
	if rec.JoinSecret != "" && secret != rec.JoinSecret {
		return false, ErrBadSecret
	}
	if err := c.store.SetActive(ctx, externalID, guestID); err != nil {
		return false, err
	}
	obslog.L().Info("match_join",
		zap.String("external_id", externalID),
		zap.String("guest_id", guestID),
	)
	return !rec.HostPlaysWhite, nil
}

// Cancel moves a WAITING match to CANCELLED. Only the host may cancel, and
// only before an opponent has joined.
func (c *Controller) Cancel(ctx context.Context, externalID, requesterID string) error {
	rec, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.Status != StatusWaiting || rec.HostID != requesterID {
		return ErrPreconditionViolated
	}
	if err := c.store.SetCancelled(ctx, externalID); err != nil {
		return err
	}
	obslog.L().Info("match_cancel", zap.String("external_id", externalID))
	return nil
}

// Complete moves an ACTIVE match to COMPLETED with its outcome. A match
// already COMPLETED is left untouched and reported as success: the live
// session's terminal transition can race between both players' check-ins,
// and the second writer must observe the same result as the first.
func (c *Controller) Complete(ctx context.Context, externalID string, method EndMethod, didHostWin, didDraw bool, moveLog string) error {
	rec, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.Status == StatusCompleted {
		return nil
	}
	if rec.Status != StatusActive {
		return ErrPreconditionViolated
	}
	if err := c.store.SetCompleted(ctx, externalID, method, didHostWin, didDraw, moveLog); err != nil {
		return err
	}
	obslog.L().Info("match_complete",
		zap.String("external_id", externalID),
		zap.String("end_method", string(method)),
		zap.Bool("did_host_win", didHostWin),
		zap.Bool("did_draw", didDraw),
	)
	return nil
}

// Status returns the lifecycle state, or ErrNotFound for an unknown id.
func (c *Controller) Status(ctx context.Context, externalID string) (Status, error) {
	rec, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNotFound
	}
	return rec.Status, nil
}

// Get returns the full record, or ErrNotFound for an unknown id.
func (c *Controller) Get(ctx context.Context, externalID string) (*Record, error) {
	rec, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}
