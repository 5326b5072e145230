package nlq

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

// DisallowedError marks a statement that violates the read-only contract.
type DisallowedError struct {
	Reason string
}

func (e *DisallowedError) Error() string {
	return "disallowed: " + e.Reason
}

var (
	readLeaders = []string{"select", "with", "from", "show", "describe", "explain", "summarize"}

	blockedKeywords = []string{
		"insert", "update", "delete", "merge", "drop", "alter", "create",
		"truncate", "grant", "revoke", "call", "execute", "prepare", "deallocate",
		"copy", "attach", "detach", "install", "load", "pragma", "set", "export",
		"import", "vacuum", "checkpoint", "use",
	}
	// Only a statement head (start of input or just after "(") can run a
	// mutation, so identifiers and aliases named like keywords stay legal.
	blockedRe = regexp.MustCompile(`(?:^|\()\s*(` + strings.Join(blockedKeywords, "|") + `)\b`)
)

// Guard enforces the read-only contract on SQL candidates:
// - single statement
// - must start with a read keyword, ignoring leading parentheses
// - when the statement parses as MySQL-flavoured SQL, it must be a SELECT/UNION/SHOW
// - otherwise no statement head inside it may be a mutating keyword
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Check returns nil for an allowed statement, *DisallowedError for a
// read-only violation and a plain error for an empty statement.
func (g *Guard) Check(sql string) error {
	s := cleanSQL(sql)
	if s == "" {
		return fmt.Errorf("empty sql")
	}
	bare := strings.ToLower(strings.TrimSpace(stripLiteralsAndComments(s)))
	if bare == "" {
		return fmt.Errorf("empty sql")
	}

	if strings.Contains(bare, ";") {
		return &DisallowedError{Reason: "multiple statements not allowed"}
	}

	leader := strings.TrimLeft(bare, "( \t\r\n")
	if i := strings.IndexAny(leader, " \t\r\n("); i > 0 {
		leader = leader[:i]
	}
	ok := false
	for _, kw := range readLeaders {
		if leader == kw {
			ok = true
			break
		}
	}
	if !ok {
		return &DisallowedError{Reason: fmt.Sprintf("only read-only queries are allowed, got %s", strings.ToUpper(leader))}
	}

	if stmt, err := sqlparser.Parse(s); err == nil {
		switch stmt.(type) {
		case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect, *sqlparser.Show, *sqlparser.OtherRead:
			return nil
		default:
			return &DisallowedError{Reason: fmt.Sprintf("statement type %T is not read-only", stmt)}
		}
	}

	// DuckDB syntax (CTEs, FROM-first) often fails to parse above.
	if m := blockedRe.FindStringSubmatch(bare); m != nil {
		return &DisallowedError{Reason: "disallowed keyword: " + m[1]}
	}
	return nil
}

// stripLiteralsAndComments blanks out string literals, quoted identifiers and
// comments so keyword checks only see SQL structure.
func stripLiteralsAndComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\'' || ch == '"':
			quote := ch
			b.WriteString("''")
			i++
			for ; i < len(s); i++ {
				if s[i] == quote {
					// doubled quote is an escape
					if i+1 < len(s) && s[i+1] == quote {
						i++
						continue
					}
					break
				}
			}
		case ch == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
