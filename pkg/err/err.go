package errprocess

import (
	"errors"
	"fmt"

	"video_clip_service/pkg/logger"
)

// Set logs the message and returns it as an error.
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Setf logs a formatted message and returns it as an error.
func Setf(format string, args ...interface{}) error {
	return Set(fmt.Sprintf(format, args...))
}

// classified wraps an error with a retry decision for the job queue.
// Fatal errors abort the job immediately; everything else is retried by
// the queue's backoff policy until attempts are exhausted.
type classified struct {
	err   error
	fatal bool
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Fatal marks err as non-retryable (bad input, malformed tool output).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, fatal: true}
}

// Transient marks err as retryable (tool timeout, connection failure).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, fatal: false}
}

// IsFatal reports whether err (or anything it wraps) was marked fatal.
// Unclassified errors are treated as transient so the queue gets a
// chance to retry them.
func IsFatal(err error) bool {
	var c *classified
	if errors.As(err, &c) {
		return c.fatal
	}
	return false
}
