package policy

import (
	"fmt"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// extra sensitive fields for the gatekeeper, table descriptions for SQL
// generation, and column-level masks for query results.
type Policy struct {
	SensitiveFields []string      `yaml:"sensitive_fields"`
	Context         ContextConfig `yaml:"context"`
}

// ContextConfig maps table names to business descriptions. Keys are either a
// bare table name, which applies to every database, or "database.table".
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and a plain-string shorthand.
//
//	columns:
//	  email: "User email"           # shorthand: ColumnContext{Description: "User email"}
//	  ssn:
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// Sensitive extends base with the policy's sensitive fields.
func (p *Policy) Sensitive(base domain.SensitiveFieldSet) domain.SensitiveFieldSet {
	if p == nil || len(p.SensitiveFields) == 0 {
		return base
	}
	return base.With(p.SensitiveFields...)
}
