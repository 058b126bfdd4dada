package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxQuestionLength bounds natural-language input.
const DefaultMaxQuestionLength = 500

// ValidateQuestion rejects empty questions and questions longer than maxLen characters.
func ValidateQuestion(question string, maxLen int) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidQuestion)
	}
	if n := utf8.RuneCountInString(question); n > maxLen {
		return fmt.Errorf("%w: question is %d characters, limit is %d", ErrInvalidQuestion, n, maxLen)
	}
	return nil
}

// CleanGeneratedSQL strips markdown fences a model may wrap around its answer.
// When a ```sql block is present only its body is kept.
func CleanGeneratedSQL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if _, after, ok := strings.Cut(cleaned, "```sql"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
