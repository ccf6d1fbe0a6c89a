package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/furnishop/api/internal/repositories"
)

var (
	errStaleOrder     = errors.New("order state changed")
	errUsageExhausted = errors.New("usage limit reached")
)

// wrapError maps driver errors onto repository semantics. Context errors pass through.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.NewStoreError(op, repositories.KindNotFound, err)
	case mongo.IsDuplicateKeyError(err):
		return repositories.NewStoreError(op, repositories.KindConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return repositories.NewStoreError(op, repositories.KindUnavailable, err)
	default:
		return repositories.NewStoreError(op, repositories.KindUnknown, err)
	}
}
