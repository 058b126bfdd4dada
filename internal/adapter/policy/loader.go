package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	for i, f := range pol.SensitiveFields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("sensitive_fields[%d] is empty", i)
		}
	}

	masks := make(map[string]string) // column -> table that set its mask
	for key, tc := range pol.Context.Tables {
		if key == "" {
			return fmt.Errorf("context.tables contains an empty key")
		}
		for col, cc := range tc.Columns {
			if col == "" {
				return fmt.Errorf("context.tables[%q].columns contains an empty key", key)
			}
			if !cc.Mask.Valid() {
				return fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, col, cc.Mask)
			}
			if cc.Mask == "" {
				continue
			}
			// Result masks apply by column name, so one name cannot carry two masks.
			if other, ok := masks[col]; ok && pol.Context.Tables[other].Columns[col].Mask != cc.Mask {
				return fmt.Errorf("conflicting masks for column %q in %q and %q", col, other, key)
			}
			masks[col] = key
		}
	}
	return nil
}
