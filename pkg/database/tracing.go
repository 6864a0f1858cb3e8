package database

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/luxuryfashion/storefront/pkg/errors"
)

const tracerName = "github.com/luxuryfashion/storefront/pkg/database"

// Values of the db.result span attribute.
const (
	ResultOK    = "ok"
	ResultMiss  = "miss"
	ResultError = "error"
)

type slowLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowLog]

// SetSlowQueryLogging logs a warning for every traced command taking at
// least threshold. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowLog{threshold: threshold, logger: logger})
}

// TraceQuery starts a client span for a PostgreSQL statement. Call the
// returned function with the statement's error when it completes:
//
//	ctx, end := database.TraceQuery(ctx, "GetAccountByEmail", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	return TraceCommand(ctx, "postgresql", operation, statement)
}

// TraceCommand is TraceQuery for any datastore; system populates db.system.
// A lookup that finds nothing (pgx.ErrNoRows, redis.Nil or ErrNotFound) is
// recorded as a miss and does not mark the span as failed, since an unknown
// email at login is an expected outcome.
func TraceCommand(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	statement = compactStatement(statement)
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		result := classifyResult(err)
		span.SetAttributes(attribute.String("db.result", result))
		if result == ResultError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		slow := slowQueries.Load()
		if slow == nil {
			return
		}
		elapsed := time.Since(start)
		if elapsed < slow.threshold {
			return
		}
		attrs := []slog.Attr{
			slog.String("db_system", system),
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.String("result", result),
			slog.Duration("duration", elapsed),
		}
		if result == ResultError {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slow.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
	}
}

func classifyResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, redis.Nil), errors.Is(err, apperrors.ErrNotFound):
		return ResultMiss
	default:
		return ResultError
	}
}

// compactStatement folds the indentation of multi-line SQL literals onto
// one line.
func compactStatement(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}
