// SPDX-License-Identifier: MIT

package datastore

import (
	"context"
	"errors"

	sklog "github.com/ManuGH/skylib/internal/log"
)

// WithConn leases a connection for the duration of fn.
func WithConn(ctx context.Context, p *Pool, fn func(ctx context.Context, c *Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(ctx, c)
}

// WithRetry is WithConn that runs fn a second time, on a newly opened
// connection, when the first attempt fails with ErrConnectionLost. fn must be
// safe to repeat: a statement may have been applied before the connection
// dropped.
func WithRetry(ctx context.Context, p *Pool, fn func(ctx context.Context, c *Conn) error) error {
	err := WithConn(ctx, p, fn)
	if !errors.Is(err, ErrConnectionLost) || ctx.Err() != nil {
		return err
	}
	p.logger.Info().
		Err(err).
		Str(sklog.FieldEvent, "datastore.retry").
		Msg("connection lost, retrying once")

	c, err := p.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(ctx, c)
}
