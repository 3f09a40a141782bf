package user

import (
	domain "user-records-service/internal/domain/user"
)

// CreateUserRequest represents the request payload for creating a new user.
// Validation runs after normalization.
type CreateUserRequest struct {
	FirstName string  `validate:"required,max=100"`
	LastName  string  `validate:"required,max=100"`
	Email     string  `validate:"required,email,max=254"`
	Notes     *string `validate:"omitempty,max=4000"`
}

// UpdateUserRequest represents a partial update. Nil fields are left
// untouched; ExtractedTags is applied when non-nil.
type UpdateUserRequest struct {
	FirstName       *string  `validate:"omitempty,min=1,max=100"`
	LastName        *string  `validate:"omitempty,min=1,max=100"`
	Email           *string  `validate:"omitempty,email,max=254"`
	Notes           *string  `validate:"omitempty,max=4000"`
	SentimentScore  *float64 `validate:"omitempty,gte=-1,lte=1"`
	ExtractedTags   []string `validate:"omitempty,dive,max=64"`
	EngagementLevel *domain.EngagementLevel
}

// HasEnrichment reports whether any enrichment field is present.
func (r UpdateUserRequest) HasEnrichment() bool {
	return r.SentimentScore != nil || r.ExtractedTags != nil || r.EngagementLevel != nil
}

// ListUsersRequest represents the request payload for listing users.
// A zero Limit returns every match without pagination.
type ListUsersRequest struct {
	Query string
	Page  int64
	Limit int64
}

// ListUsersResponse represents the response payload for user listing.
type ListUsersResponse struct {
	Users      []domain.User
	Pagination *domain.Pagination
}
