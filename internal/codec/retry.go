package codec

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region constants

const maxRetries = 2 // max 2 retries = 3 total attempts

// retryBackoff is the wait before the first retry; it doubles per attempt.
var retryBackoff = 200 * time.Millisecond

// #endregion

// #region retry

// withRetry runs call until it succeeds, fails with a non-transient status,
// runs out of attempts, or ctx ends.
func withRetry(ctx context.Context, call func() (*structpb.Struct, error)) (*structpb.Struct, error) {
	wait := retryBackoff
	for attempts := 1; ; attempts++ {
		resp, err := call()
		if !shouldRetry(err, attempts) {
			return resp, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// shouldRetry reports whether err is transient and attempts remain.
// attempts counts the calls made so far.
func shouldRetry(err error, attempts int) bool {
	if err == nil || attempts > maxRetries {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// #endregion
