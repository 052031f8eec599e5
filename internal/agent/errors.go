package agent

import (
	"context"
	"errors"

	"github.com/soyeahso/hotline/internal/domain"
)

// ErrRoundTripLimit is returned when a turn needs more generation calls
// than the engine allows. Nothing is committed; the caller may retry.
var ErrRoundTripLimit = errors.New("round-trip limit exceeded")

// ErrEmptyUtterance is returned for a turn without user text.
var ErrEmptyUtterance = errors.New("empty utterance")

// IsRecoverable reports whether a failed turn may succeed if the user
// simply tries again.
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRoundTripLimit),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return isRetryable(err)
}
