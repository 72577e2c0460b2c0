// Package ids generates the opaque prefixed identifiers used across the
// registry, approval, and notification stores.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a "prefix_<8 hex chars>" identifier, e.g. "exp_a1b2c3d4".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
}
