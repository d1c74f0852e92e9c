package audit

import (
	"context"
	"time"

	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

type queryTimingKey struct{}

// hooks satisfies sqlhooks.Hooks, logging each query's timing through
// flog.
type hooks struct{}

func (hooks) Before(ctx context.Context, query string, args ...any) (context.Context, error) {
	flog.Debugf("audit: query %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (hooks) After(ctx context.Context, query string, args ...any) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		flog.Debugf("audit: query took %s", time.Since(begin))
	}
	return ctx, nil
}
