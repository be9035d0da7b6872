package database

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

var (
	busyRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_database_busy_retries_total",
		Help: "Write transactions retried because SQLite reported busy or locked",
	})
	busyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_database_busy_failures_total",
		Help: "Write transactions that stayed busy after every retry",
	})
)

// busyMarkers are the messages and result codes both sqlite drivers use for
// SQLITE_BUSY (5) and SQLITE_LOCKED (6).
var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"(5)",
	"(6)",
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// retryWithBackoff runs fn until it succeeds, fails with something other than
// a busy error, or maxRetries retries have been spent. Delays double from
// retryBaseDelay with up to 25% jitter and are capped at retryMaxDelay.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) {
			return err
		}
		if attempt >= maxRetries {
			busyFailures.Inc()
			return err
		}
		busyRetries.Inc()

		delay := retryBaseDelay * time.Duration(1<<attempt)
		delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
