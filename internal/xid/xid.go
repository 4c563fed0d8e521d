package xid

import (
	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "sync-3f6c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
