package mcp

import (
	"regexp"
)

const maxNameLength = 64

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// NameAdapter handles mapping between MCP tool names (which may contain dots)
// and safe function names (which must match ^[a-zA-Z0-9_-]{1,64}$).
type NameAdapter struct {
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a safe name by replacing dots and
// other disallowed characters with underscores.
// Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	safe := unsafeNameChars.ReplaceAllString(original, "_")
	if len(safe) > maxNameLength {
		safe = safe[:maxNameLength]
	}
	return safe
}

// ToOriginalName converts a safe name back to the original MCP tool name.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// GetSafeName returns the safe name for an original name, creating the mapping
// if needed. ok is false when the safe name already belongs to a different tool.
func (a *NameAdapter) GetSafeName(original string) (safe string, ok bool) {
	if safe, found := a.originalToSafe[original]; found {
		return safe, true
	}
	safe = ToSafeName(original)
	if other, taken := a.safeToOriginal[safe]; taken && other != original {
		return safe, false
	}
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
	return safe, true
}
