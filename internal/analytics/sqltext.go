package analytics

import "strings"

// quoteLiteral renders s as a single-quoted SQL string literal, doubling any
// embedded quotes. Constraint values are interpolated into generated
// predicate text, never into user-supplied SQL.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quotedList renders values as a comma-separated list of SQL string literals
// for use inside an IN (...) condition.
func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ",")
}
