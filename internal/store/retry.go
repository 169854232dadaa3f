package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultMaxAttempts = 5

var tracer = otel.Tracer("github.com/npezzotti/nodechat/internal/store")

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return b
}

// Retry runs attempt until it succeeds, fails with anything other than a
// conflict, or maxAttempts conflicts have happened. Backends wrap one
// transaction attempt in it so callers never see a conflict that a retry
// could have resolved.
func Retry(ctx context.Context, name string, maxAttempts int, attempt func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := attempt(ctx)
		if err != nil && !IsConflict(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	span.SetAttributes(attribute.Int("store.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
