package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

// Refresher exchanges the ambient session cookie for a new credential.
type Refresher interface {
	RefreshCredential(ctx context.Context) error
}

// WithRefresh runs op and, when it fails with an unauthorized error,
// refreshes the credential exactly once and runs op exactly once more.
// The result of the second attempt is returned as is, whatever it is.
func WithRefresh[T any](ctx context.Context, r Refresher, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if err == nil || !errors.Is(err, domain.ErrUnauthorized) {
		return v, err
	}

	l := log.Ctx(ctx)
	l.Debug().Err(err).Msg("credential rejected, refreshing once")

	if rerr := r.RefreshCredential(ctx); rerr != nil {
		var zero T
		return zero, fmt.Errorf("failed to refresh credential: %w", rerr)
	}

	return op(ctx)
}

// WithRefreshNoResult is WithRefresh for operations without a result.
func WithRefreshNoResult(ctx context.Context, r Refresher, op func(ctx context.Context) error) error {
	_, err := WithRefresh(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
