package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"public"`, quoteIdent("public"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
