package policy

import (
	"strings"

	"github.com/guillermoBallester/querygate/internal/core/domain"
)

// MaskSpec extracts a column-name -> mask-type map from the policy for use in result masking.
func MaskSpec(ctx ContextConfig) map[string]domain.MaskType {
	spec := make(map[string]domain.MaskType)
	for _, tc := range ctx.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}

// TableDescriptions returns the descriptions that apply to database, keyed by
// bare table name. A "database.table" entry wins over a bare "table" entry.
func TableDescriptions(ctx ContextConfig, database string) map[string]string {
	out := make(map[string]string)
	for key, tc := range ctx.Tables {
		if tc.Description == "" || strings.Contains(key, ".") {
			continue
		}
		out[key] = tc.Description
	}
	for key, tc := range ctx.Tables {
		db, table, ok := strings.Cut(key, ".")
		if !ok || tc.Description == "" || db != database {
			continue
		}
		out[table] = tc.Description
	}
	return out
}

// MergeDescriptions fills in policy descriptions for tables without a database
// comment. Operator-set comments in the database always take precedence.
func MergeDescriptions(comments map[string]string, ctx ContextConfig, database string) map[string]string {
	merged := make(map[string]string, len(comments))
	for table, desc := range TableDescriptions(ctx, database) {
		merged[table] = desc
	}
	for table, comment := range comments {
		if comment != "" {
			merged[table] = comment
		}
	}
	return merged
}
