// Package source wraps each category of remote or local data behind a
// TTL cache. Sources fetch and normalize; they never combine domains —
// that is the assembler's job. Every source exposes the same surface:
// Get, Refresh, Invalidate, Has, Clear, Dispose.
package source

import "strings"

const keySeparator = ":"

// JoinKey builds a deterministic composite cache key such as
// "world:room" or "world:user".
func JoinKey(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

// SplitKey parses a composite key back into its parts.
func SplitKey(key string) []string {
	return strings.Split(key, keySeparator)
}
