package models

import (
	"fmt"
	"strings"
	"time"
)

// StarredTag is the system tag used to mark favourite queries.
const StarredTag = "system:starred"

// QueryTag represents a tag on a saved query.
// Tags can be simple (just a key) or key-value pairs.
//
// Examples:
//   - Simple tag: {TagKey: "oncall", TagValue: ""}
//   - Key-value tag: {TagKey: "team", TagValue: "payments"}
//   - System tag: {TagKey: "system:starred", TagValue: ""}
type QueryTag struct {
	// ID is the unique identifier for this tag (UUID).
	ID string `json:"id"`

	// QueryID references the saved query this tag belongs to.
	QueryID string `json:"queryId"`

	// TagKey is the tag name or key.
	TagKey string `json:"tagKey"`

	// TagValue is the optional tag value for key-value tags.
	TagValue string `json:"tagValue,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ParseTag parses a tag string into key and value components.
//
// Examples:
//   - "oncall" -> key="oncall", value=""
//   - "team=payments" -> key="team", value="payments"
//   - "system:starred" -> key="system:starred", value=""
func ParseTag(tag string) (key string, value string) {
	parts := strings.SplitN(tag, "=", 2)
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		value = strings.TrimSpace(parts[1])
	}
	return key, value
}

// ValidateTag rejects empty keys and user-supplied system tags.
func ValidateTag(tag string) error {
	key, _ := ParseTag(tag)
	if key == "" {
		return fmt.Errorf("tag key must not be empty")
	}
	if strings.HasPrefix(key, "system:") {
		return fmt.Errorf("tag %q uses the reserved system: prefix", key)
	}
	return nil
}

// FormatTag formats a tag back to its string representation.
func (t *QueryTag) FormatTag() string {
	if t.TagValue == "" {
		return t.TagKey
	}
	return fmt.Sprintf("%s=%s", t.TagKey, t.TagValue)
}

// IsSystemTag checks if a tag is a system reserved tag.
func (t *QueryTag) IsSystemTag() bool {
	return strings.HasPrefix(t.TagKey, "system:")
}
