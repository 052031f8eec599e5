package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
)

// ThreadKey identifies the thread a routed message belongs to.
type ThreadKey struct {
	Domain domain.Domain
	UserID string
}

// ID returns the stable thread id.
func (k ThreadKey) ID() string { return domain.ThreadID(k.Domain, k.UserID) }

func (k ThreadKey) String() string { return k.ID() }

// ErrInvalidUserID is returned for a user id that cannot key a thread.
var ErrInvalidUserID = errors.New("invalid user id")

// ResolveThreadKey builds a thread key for a user in a domain.
//
// User ids are trimmed; an empty id is rejected because every user would
// otherwise share one conversation.
func ResolveThreadKey(d domain.Domain, userID string) (ThreadKey, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ThreadKey{}, fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if strings.ContainsAny(userID, " \t\n") {
		return ThreadKey{}, fmt.Errorf("%w: %q contains whitespace", ErrInvalidUserID, userID)
	}
	return ThreadKey{Domain: d, UserID: userID}, nil
}
