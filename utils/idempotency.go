package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StableKey derives the idempotency key for a retry-safe payment intent. It
// returns the prefix unchanged: the prefix already identifies the logical
// intent (booking id), so every retry submits under the identical key and
// the remote system can de-duplicate.
func StableKey(intentPrefix string) string {
	return intentPrefix
}

// OneShotKey derives a key for a genuinely new purchase that has no stable
// server-assigned identifier yet. It mixes a timestamp and random bits, so
// no two calls collide. Never use it where a retry must be recognized as
// the same operation.
func OneShotKey(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), uuid.NewString())
}
