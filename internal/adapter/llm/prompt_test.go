package llm

import (
	"strings"
	"testing"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/stretchr/testify/assert"
)

func testRequest() port.GenerationRequest {
	return port.GenerationRequest{
		Question: "How many students are there?",
		Schema: domain.SchemaSnapshot{
			"student": {{Name: "id", Type: "int"}, {Name: "name", Type: "varchar"}},
			"course":  {{Name: "id", Type: "int"}},
		},
		TableDescriptions: map[string]string{"student": "Enrolled students", "ghost": "not in schema"},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("MySQL", testRequest())

	assert.Contains(t, prompt, "accurate MySQL statements")
	assert.Contains(t, prompt, "- course(id int)\n- student(id int, name varchar) -- Enrolled students\n")
	assert.Contains(t, prompt, "## Generation Rules")
	assert.Contains(t, prompt, "automatically add LIMIT 250")
	assert.True(t, strings.HasSuffix(prompt, "## Query to Convert\n\"\"\"How many students are there?\"\"\"\n"))
	assert.NotContains(t, prompt, "ghost")
	assert.NotContains(t, prompt, "## Previous Attempt")
}

func TestBuildPrompt_Retry(t *testing.T) {
	req := testRequest()
	req.PreviousSQL = "SELECT nme FROM student"
	req.PreviousError = "Unknown column 'nme'"

	prompt := BuildPrompt("PostgreSQL", req)

	assert.Contains(t, prompt, "## Previous Attempt")
	assert.Contains(t, prompt, "Query: SELECT nme FROM student\n")
	assert.Contains(t, prompt, "Error: Unknown column 'nme'\n")
	assert.Less(t, strings.Index(prompt, "## Previous Attempt"), strings.Index(prompt, "## Query to Convert"))
}

func TestBuildPrompt_DefaultDialect(t *testing.T) {
	assert.Contains(t, BuildPrompt("", testRequest()), "accurate SQL statements")
}
