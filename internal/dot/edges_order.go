package dot

import (
	"fmt"
	"regexp"
	"strings"
)

type edgeSpec struct {
	From string
	To   string
}

// splitStatements breaks the DOT source on ';' and newlines outside quoted
// strings, so edge statements can be matched one at a time.
func splitStatements(source string) []string {
	var out []string
	var b strings.Builder
	inQuotes := false
	escape := false

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	for _, r := range source {
		if escape {
			b.WriteRune(r)
			escape = false
			continue
		}
		if r == '\\' && inQuotes {
			b.WriteRune(r)
			escape = true
			continue
		}
		if r == '"' {
			inQuotes = !inQuotes
			b.WriteRune(r)
			continue
		}
		if (r == ';' || r == '\n') && !inQuotes {
			flush()
			continue
		}
		b.WriteRune(r)
	}
	flush()
	return out
}

var edgeStmtRe = regexp.MustCompile(`^\s*"?([A-Za-z_][A-Za-z0-9_]*)"?\s*->\s*"?([A-Za-z_][A-Za-z0-9_]*)"?\s*(\[.*\])?\s*$`)

// extractEdgesInTextOrder returns the edges exactly as authored. The DOT
// parser loses statement order, and children order decides which branch is
// true, so the text is the source of truth here.
func extractEdgesInTextOrder(source string) ([]edgeSpec, error) {
	var out []edgeSpec
	for _, s := range splitStatements(source) {
		if !strings.Contains(s, "->") {
			continue
		}
		m := edgeStmtRe.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("unsupported edge statement: %q", s)
		}
		out = append(out, edgeSpec{From: m[1], To: m[2]})
	}
	return out, nil
}
