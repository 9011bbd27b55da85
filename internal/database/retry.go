package database

import (
	"context"
	"time"

	"github.com/newsinsight/docservice/pkg/logger"
)

var initialBackoff = time.Second

func retry[T any](ctx context.Context, attempts int, connect func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := initialBackoff
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = connect()
		if err == nil {
			return v, nil
		}
		logger.Warnf("attempt %d/%d: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
	return v, err
}
