package port

import (
	"context"

	"github.com/guillermoBallester/querygate/internal/core/domain"
)

// GenerationRequest is the input to one SQL generation attempt.
type GenerationRequest struct {
	Question string
	Database string
	Schema   domain.SchemaSnapshot
	// TableDescriptions are optional human notes per table, rendered into the prompt.
	TableDescriptions map[string]string
	// PreviousSQL and PreviousError are set when regenerating after a failed execution.
	PreviousSQL   string
	PreviousError string
}

// SQLGenerator turns a natural-language question into SQL. Its output is
// untrusted and must pass the gatekeeper before execution.
type SQLGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
