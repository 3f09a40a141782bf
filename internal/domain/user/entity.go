package user

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrEmailTaken is returned by a repository when a write would give two
// live records the same email.
var ErrEmailTaken = errors.New("email already taken")

// User represents a user entity in the system.
type User struct {
	ID        uuid.UUID `json:"id"`        // ID is assigned by the store and never changes
	FirstName string    `json:"firstName"` // FirstName is the trimmed given name
	LastName  string    `json:"lastName"`  // LastName is the trimmed family name
	Email     string    `json:"email"`     // Email is trimmed, lower-cased and unique
	Notes     *string   `json:"notes"`     // Notes is optional free text
	CreatedAt time.Time `json:"createdAt"` // CreatedAt is stamped once by the store

	SentimentScore  *float64         `json:"sentimentScore"`
	ExtractedTags   []string         `json:"extractedTags"`
	EngagementLevel *EngagementLevel `json:"engagementLevel"`
	LastAnalyzedAt  *time.Time       `json:"lastAnalyzedAt"`
}

// Clone returns a deep copy of u. Pointer and slice fields never alias the
// original.
func (u User) Clone() User {
	c := u
	if u.Notes != nil {
		n := *u.Notes
		c.Notes = &n
	}
	if u.SentimentScore != nil {
		s := *u.SentimentScore
		c.SentimentScore = &s
	}
	if u.ExtractedTags != nil {
		c.ExtractedTags = slices.Clone(u.ExtractedTags)
	}
	if u.EngagementLevel != nil {
		l := *u.EngagementLevel
		c.EngagementLevel = &l
	}
	if u.LastAnalyzedAt != nil {
		t := *u.LastAnalyzedAt
		c.LastAnalyzedAt = &t
	}
	return c
}

// HasNotes reports whether the user carries non-empty notes.
func (u *User) HasNotes() bool {
	return u.Notes != nil && *u.Notes != ""
}

// IsAnalyzed reports whether any enrichment field has ever been set.
func (u *User) IsAnalyzed() bool {
	return u.LastAnalyzedAt != nil
}

// ApplyInsights copies enrichment results onto u and stamps LastAnalyzedAt.
func (u *User) ApplyInsights(in Insights, now time.Time) {
	score := in.SentimentScore
	u.SentimentScore = &score
	u.ExtractedTags = slices.Clone(in.Tags)
	if in.EngagementLevel != nil {
		level := *in.EngagementLevel
		u.EngagementLevel = &level
	} else {
		u.EngagementLevel = nil
	}
	ts := now.UTC()
	u.LastAnalyzedAt = &ts
}

// Insights is the result of analyzing a user's notes.
type Insights struct {
	SentimentScore  float64          `json:"sentimentScore"`
	Tags            []string         `json:"tags"`
	EngagementLevel *EngagementLevel `json:"engagementLevel"`
	Summary         string           `json:"summary,omitempty"`
}
