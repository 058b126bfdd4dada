package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType represents a column masking strategy.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid returns true if the MaskType is a recognised masking strategy
// (including the zero value "", which means "no mask").
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type.
// Masked values may change type (e.g. int -> string for hash/partial).
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}

	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		h := sha256.Sum256([]byte(fmt.Sprint(value)))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(fmt.Sprint(value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial keeps the last 4 runes.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	for i := range len(runes) - 4 {
		runes[i] = '*'
	}
	return string(runes)
}

// ResultMasker hides sensitive values in result rows. A query may pass the
// gatekeeper and still return a sensitive column through SELECT *, so any
// column whose name contains a sensitive field is redacted. Explicit masks
// from the policy file take precedence.
type ResultMasker struct {
	sensitive SensitiveFieldSet
	masks     map[string]MaskType // column-name -> mask-type
}

func NewResultMasker(sensitive SensitiveFieldSet, masks map[string]MaskType) *ResultMasker {
	return &ResultMasker{sensitive: sensitive, masks: masks}
}

// maskFor returns the mask for a column, or "" when the column is left alone.
func (m *ResultMasker) maskFor(column string) MaskType {
	if mt, ok := m.masks[column]; ok {
		return mt
	}
	if m.sensitive.Matches(column) {
		return MaskRedact
	}
	return ""
}

// MaskRows applies masks to rows in place and returns the masked column names.
func (m *ResultMasker) MaskRows(columns []string, rows []map[string]any) []string {
	if m == nil {
		return nil
	}
	var masked []string
	for _, col := range columns {
		mt := m.maskFor(col)
		if mt == "" {
			continue
		}
		masked = append(masked, col)
		for _, row := range rows {
			if val, ok := row[col]; ok {
				row[col] = ApplyMask(val, mt)
			}
		}
	}
	return masked
}
