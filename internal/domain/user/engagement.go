package user

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EngagementLevel classifies how engaged a user appears from their notes.
type EngagementLevel int

const (
	EngagementLow EngagementLevel = iota
	EngagementMedium
	EngagementHigh
	EngagementVeryHigh
)

var engagementNames = [...]string{"Low", "Medium", "High", "VeryHigh"}

// String returns the canonical name of the level.
func (l EngagementLevel) String() string {
	if l.Valid() {
		return engagementNames[l]
	}
	return fmt.Sprintf("EngagementLevel(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l EngagementLevel) Valid() bool {
	return l >= EngagementLow && l <= EngagementVeryHigh
}

// Ptr returns a pointer to a copy of l.
func (l EngagementLevel) Ptr() *EngagementLevel {
	return &l
}

// ParseEngagementLevel parses a level name case-insensitively. "very_high",
// "very-high" and "very high" are accepted for VeryHigh.
func ParseEngagementLevel(s string) (EngagementLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	for i, name := range engagementNames {
		if strings.ToLower(name) == norm {
			return EngagementLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown engagement level %q", s)
}

// MarshalJSON encodes the level as its name.
func (l EngagementLevel) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid engagement level %d", int(l))
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts either the level name or its ordinal.
func (l *EngagementLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseEngagementLevel(s)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("engagement level must be a string or integer: %w", err)
	}
	if !EngagementLevel(n).Valid() {
		return fmt.Errorf("invalid engagement level %d", n)
	}
	*l = EngagementLevel(n)
	return nil
}
