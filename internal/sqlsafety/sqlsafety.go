// Package sqlsafety implements the policy gate that decides whether a piece
// of text is an executable SQL statement and whether it is allowed to run.
// The gate treats model-generated SQL exactly as untrusted as user input.
package sqlsafety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Statement is the top-level statement keyword of a SQL text.
type Statement string

const (
	StatementSelect  Statement = "SELECT"
	StatementWith    Statement = "WITH"
	StatementInsert  Statement = "INSERT"
	StatementUpdate  Statement = "UPDATE"
	StatementDelete  Statement = "DELETE"
	StatementPragma  Statement = "PRAGMA"
	StatementCreate  Statement = "CREATE"
	StatementDrop    Statement = "DROP"
	StatementUnknown Statement = "UNKNOWN"
)

// Rejection reason codes, used as low-cardinality metric labels.
const (
	ReasonStatementNotAllowed = "statement_not_allowed"
	ReasonStatementStacking   = "statement_stacking"
	ReasonForbiddenOperation  = "forbidden_operation"
)

// Classification is the result of inspecting one SQL text. It is derived
// purely from the text; classification has no side effects.
type Classification struct {
	IsExplicitSQL   bool
	Statement       Statement
	IsSafe          bool
	ReasonCode      string
	RejectionReason string
}

var (
	leadingKeywordRe = regexp.MustCompile(`(?i)^(SELECT|WITH|INSERT|UPDATE|DELETE|PRAGMA|CREATE|DROP)\b`)
	forbiddenWordRe  = regexp.MustCompile(`(?i)\b(ATTACH|DETACH|ALTER|VACUUM|REINDEX)\b`)
	pragmaVersionRe  = regexp.MustCompile(`(?i)\bPRAGMA\s+user_version\b`)
)

// Policy is the set of top-level statements the gate accepts.
type Policy struct {
	allowed map[Statement]bool
}

// DefaultPolicy allows read-only SELECT and WITH statements.
func DefaultPolicy() Policy {
	return NewPolicy(StatementSelect, StatementWith)
}

func NewPolicy(statements ...Statement) Policy {
	allowed := make(map[Statement]bool, len(statements))
	for _, statement := range statements {
		allowed[statement] = true
	}
	return Policy{allowed: allowed}
}

// ParsePolicy builds a policy from a comma-separated keyword list such as
// "SELECT,WITH". Unknown keywords are an error so a config typo cannot
// silently widen or narrow the gate.
func ParsePolicy(spec string) (Policy, error) {
	parts := strings.Split(spec, ",")
	statements := make([]Statement, 0, len(parts))
	for _, part := range parts {
		keyword := Statement(strings.ToUpper(strings.TrimSpace(part)))
		if keyword == "" {
			continue
		}
		switch keyword {
		case StatementSelect, StatementWith, StatementInsert, StatementUpdate, StatementDelete:
			statements = append(statements, keyword)
		default:
			return Policy{}, fmt.Errorf("statement %q cannot be allowed by policy", keyword)
		}
	}
	if len(statements) == 0 {
		return DefaultPolicy(), nil
	}
	return NewPolicy(statements...), nil
}

// AllowedList returns the allowed statements sorted for stable messages.
func (p Policy) AllowedList() []string {
	list := make([]string, 0, len(p.allowed))
	for statement := range p.allowed {
		list = append(list, string(statement))
	}
	sort.Strings(list)
	return list
}

// StatementOf reports the top-level statement keyword of text after
// skipping leading line comments and whitespace.
func StatementOf(text string) Statement {
	if match := leadingKeywordRe.FindString(stripLeadingComments(text)); match != "" {
		return Statement(strings.ToUpper(match))
	}
	return StatementUnknown
}

// Classify inspects text and reports whether it is explicit SQL and whether
// the policy permits executing it. Empty or all-whitespace input is simply
// not explicit SQL; it is never an error.
func (p Policy) Classify(text string) Classification {
	stripped := stripLeadingComments(text)

	result := Classification{Statement: StatementOf(text)}
	result.IsExplicitSQL = result.Statement != StatementUnknown

	if !p.allowed[result.Statement] {
		result.ReasonCode = ReasonStatementNotAllowed
		result.RejectionReason = fmt.Sprintf("Statement '%s' not allowed; allowed statements: %s",
			result.Statement, strings.Join(p.AllowedList(), ", "))
		return result
	}
	if strings.Count(stripped, ";") > 1 {
		result.ReasonCode = ReasonStatementStacking
		result.RejectionReason = "Multiple SQL statements are not allowed"
		return result
	}
	if word := forbiddenWordRe.FindString(stripped); word != "" {
		result.ReasonCode = ReasonForbiddenOperation
		result.RejectionReason = fmt.Sprintf("Forbidden operation '%s' is not allowed", strings.ToUpper(word))
		return result
	}
	if pragmaVersionRe.MatchString(stripped) {
		result.ReasonCode = ReasonForbiddenOperation
		result.RejectionReason = "Forbidden operation 'PRAGMA user_version' is not allowed"
		return result
	}

	result.IsSafe = true
	return result
}

// stripLeadingComments removes leading whitespace and "--" line comments so
// keyword detection sees the first effective token.
func stripLeadingComments(text string) string {
	remaining := text
	for {
		remaining = strings.TrimLeft(remaining, " \t\r\n")
		if !strings.HasPrefix(remaining, "--") {
			return remaining
		}
		newline := strings.IndexByte(remaining, '\n')
		if newline < 0 {
			return ""
		}
		remaining = remaining[newline+1:]
	}
}
