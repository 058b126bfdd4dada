package domain

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xwb1989/sqlparser"
)

// Reason is the fixed taxonomy of gatekeeper rejections.
type Reason string

const (
	ReasonSensitiveField     Reason = "SENSITIVE_FIELD"
	ReasonInjectionSuspected Reason = "INJECTION_SUSPECTED"
	ReasonNotReadOnly        Reason = "NOT_READ_ONLY"
	ReasonNoValidTable       Reason = "NO_VALID_TABLE"
)

// PreviewLength is the number of characters of query text carried in Decision.Preview.
const PreviewLength = 200

// Column is a single (name, type) pair of a table in a SchemaSnapshot.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SchemaSnapshot maps table name to its columns for a single target database.
// It is supplied fresh per evaluation and never retained by the Gatekeeper.
type SchemaSnapshot map[string][]Column

// Tables returns the table names of the snapshot in sorted order.
func (s SchemaSnapshot) Tables() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Decision is the outcome of evaluating one query.
//
// When no DML keyword can be identified the query is treated as read-only
// and only the table-scope screen stands between it and execution. This
// fallback is kept for compatibility with existing callers; statement types
// the tokenizer cannot classify are a known gap.
type Decision struct {
	Accepted bool     `json:"accepted"`
	Reason   Reason   `json:"reason,omitempty"`
	Tables   []string `json:"tables,omitempty"`
	Query    string   `json:"-"`
	Preview  string   `json:"preview"`
}

// Err returns nil for accepted decisions and a *RejectionError otherwise.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return &RejectionError{Reason: d.Reason, Preview: d.Preview}
}

// dangerousPhrases are matched as substrings of the lower-cased, whitespace-normalized query.
var dangerousPhrases = []string{
	"drop table",
	"truncate table",
	"delete from",
	"insert into",
	"update table",
	"alter table",
	"create table",
	"rename table",
	"shutdown",
}

// statementKeywords are the tokens that identify a statement's effect.
var statementKeywords = map[int]bool{
	sqlparser.SELECT:   true,
	sqlparser.INSERT:   true,
	sqlparser.UPDATE:   true,
	sqlparser.DELETE:   true,
	sqlparser.REPLACE:  true,
	sqlparser.CREATE:   true,
	sqlparser.ALTER:    true,
	sqlparser.DROP:     true,
	sqlparser.RENAME:   true,
	sqlparser.TRUNCATE: true,
}

// Gatekeeper decides whether an untrusted SQL string may be executed.
// It holds only immutable configuration and is safe for concurrent use.
type Gatekeeper struct {
	sensitive SensitiveFieldSet
}

// NewGatekeeper returns a Gatekeeper screening for the given sensitive fields.
func NewGatekeeper(sensitive SensitiveFieldSet) *Gatekeeper {
	return &Gatekeeper{sensitive: sensitive}
}

// SensitiveFields returns the set the gatekeeper screens for.
func (g *Gatekeeper) SensitiveFields() SensitiveFieldSet {
	return g.sensitive
}

// Evaluate runs the screens in order and stops at the first failure.
func (g *Gatekeeper) Evaluate(query string, schema SchemaSnapshot) Decision {
	d := Decision{Query: query, Preview: Preview(query)}

	if g.sensitive.Matches(query) {
		d.Reason = ReasonSensitiveField
		return d
	}

	if injectionSuspected(query) {
		d.Reason = ReasonInjectionSuspected
		return d
	}

	tokens := scanTokens(query)

	if kw, ok := leadingKeyword(tokens); ok && kw != sqlparser.SELECT {
		d.Reason = ReasonNotReadOnly
		return d
	}

	tables := referencedTables(tokens, schema)
	if len(tables) == 0 {
		d.Reason = ReasonNoValidTable
		return d
	}

	d.Accepted = true
	d.Tables = tables
	return d
}

// Preview truncates query to PreviewLength characters.
func Preview(query string) string {
	if utf8.RuneCountInString(query) <= PreviewLength {
		return query
	}
	return string([]rune(query)[:PreviewLength])
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func injectionSuspected(query string) bool {
	normalized := normalizeWhitespace(query)

	// One trailing terminator is tolerated; any other semicolon means stacked statements.
	if strings.Contains(strings.TrimSuffix(normalized, ";"), ";") {
		return true
	}

	lowered := strings.ToLower(normalized)
	for _, phrase := range dangerousPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}

	if strings.Contains(normalized, "/*") ||
		strings.Contains(normalized, "-- ") ||
		strings.Contains(normalized, "# ") {
		return true
	}

	unescaped := strings.NewReplacer(`\'`, "", `\"`, "").Replace(normalized)
	return strings.Count(unescaped, "'")%2 != 0 || strings.Count(unescaped, `"`)%2 != 0
}

type token struct {
	typ int
	val string
}

// scanTokens lexes query with the MySQL-dialect tokenizer. Lexical errors
// are skipped rather than reported; the table-scope screen is the backstop.
func scanTokens(query string) []token {
	tkn := sqlparser.NewStringTokenizer(query)
	var tokens []token
	// Every Scan consumes at least one byte, so len(query)+1 bounds the loop.
	for range len(query) + 1 {
		typ, val := tkn.Scan()
		if typ == 0 {
			break
		}
		if typ == sqlparser.LEX_ERROR {
			continue
		}
		text := string(val)
		if typ != sqlparser.ID && sqlparser.KeywordString(typ) != "" {
			text = keywordSpelling(query, tkn.Position, text)
		}
		tokens = append(tokens, token{typ: typ, val: text})
	}
	return tokens
}

// keywordSpelling recovers the source spelling of a keyword token, which the
// tokenizer returns lower-cased. After a scan the tokenizer has read one byte
// past the token, so the token ends at position-1.
func keywordSpelling(query string, position int, lowered string) string {
	end := min(position-1, len(query))
	start := end - len(lowered)
	if start < 0 || !strings.EqualFold(query[start:end], lowered) {
		return lowered
	}
	return query[start:end]
}

func leadingKeyword(tokens []token) (int, bool) {
	for _, t := range tokens {
		if statementKeywords[t.typ] {
			return t.typ, true
		}
	}
	return 0, false
}

func isWord(t token) bool {
	return t.typ == sqlparser.ID || sqlparser.KeywordString(t.typ) != ""
}

func referencedTables(tokens []token, schema SchemaSnapshot) []string {
	var tables []string
	for _, t := range tokens {
		if !isWord(t) {
			continue
		}
		if _, ok := schema[t.val]; ok && !slices.Contains(tables, t.val) {
			tables = append(tables, t.val)
		}
	}
	slices.Sort(tables)
	return tables
}
