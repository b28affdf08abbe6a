package proxy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewMessageID returns a random message id of the form msg_<32 hex digits>.
func NewMessageID() string {
	return "msg_" + hexUUID(uuid.New())
}

// DeriveMessageID returns a message id that is stable for the same seed.
func DeriveMessageID(seed string) string {
	return "msg_" + hexUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)))
}

// newToolUseID returns an id for a tool call the backend left unnamed.
func newToolUseID() string {
	return "toolu_" + hexUUID(uuid.New())
}

func hexUUID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// deriveToolUseID returns a stable id for the i-th tool call of a message.
func deriveToolUseID(seed string, i int) string {
	return "toolu_" + hexUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", seed, i))))
}
