package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
)

const defaultStoreTimeout = 10 * time.Second

// bounded gives a store call its own deadline.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// detached keeps ctx values but survives caller cancellation; used for
// writes that must land once a remote side effect already happened.
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return bounded(context.WithoutCancel(ctx), d)
}

// storeErr converts a repository error into an AppError. AppErrors pass
// through untouched so ledger errors keep their code inside transactions.
func storeErr(op, msg string, err error) error {
	var ae *utils.AppError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, utils.ErrNotFound):
		return utils.E(utils.CodeNotFound, op, msg+": not found", err)
	case errors.Is(err, utils.ErrConstraint):
		return utils.E(utils.CodeConflict, op, msg+": constraint violation", err)
	case errors.Is(err, context.DeadlineExceeded):
		return utils.E(utils.CodeTimeout, op, msg+": timed out", err)
	default:
		return utils.E(utils.CodeUnavailable, op, msg, err)
	}
}

func checkOwner(op string, iv *models.Interview, accountID string) error {
	if iv.AccountID != accountID {
		return utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return nil
}
