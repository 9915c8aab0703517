package engine

import (
	"strings"

	"github.com/nimbus-im/nimbus/pkg/apperr"
)

// keySeparator joins the two participant ids of a conversation key.
// Participant ids must not contain it, otherwise keys would collide.
const keySeparator = "_"

// ConversationKey derives the canonical key for the unordered pair (a, b):
// the two ids sorted lexicographically and joined with "_". The result is
// identical regardless of argument order.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + keySeparator + b
}

// ValidateUserID rejects empty ids and ids that would break key derivation.
func ValidateUserID(id string) error {
	if id == "" {
		return apperr.Invalid("user id must not be empty")
	}
	if strings.Contains(id, keySeparator) {
		return apperr.Invalidf("user id %q must not contain %q", id, keySeparator)
	}
	return nil
}
