package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally namespaced by a prefix
// ("rft" yields "rft_6f1c..."). The uuid is compacted to bare hex so ids
// stay safe inside URLs and Redis keys.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
