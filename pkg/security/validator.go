package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSearchQueryLength defines the maximum allowed length for search queries, in characters
	MaxSearchQueryLength = 100
)

var (
	ErrQueryTooLong     = errors.New("search query too long")
	ErrQueryInvalidChar = errors.New("search query contains invalid characters")
)

// markupPatterns match script injection attempts. Queries are echoed back in
// logs and error messages.
var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(<script|</script|javascript:|vbscript:|onload=|onerror=)`),
	regexp.MustCompile(`(?i)<\s*/?\s*[a-z]+[^>]*>`),
}

// ValidateSearchQuery trims a user search query and rejects overly long input,
// markup and characters that cannot appear in a name or email.
func ValidateSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		return "", ErrQueryTooLong
	}

	for _, pattern := range markupPatterns {
		if pattern.MatchString(query) {
			return "", ErrQueryInvalidChar
		}
	}

	for _, char := range query {
		if !isValidSearchChar(char) {
			return "", ErrQueryInvalidChar
		}
	}

	return query, nil
}

// isValidSearchChar checks if a character can appear in a name or email
func isValidSearchChar(char rune) bool {
	if unicode.IsLetter(char) || unicode.IsNumber(char) || unicode.IsMark(char) {
		return true
	}
	switch char {
	case ' ', '-', '_', '.', '@', '+', '\'':
		return true
	}
	return false
}
