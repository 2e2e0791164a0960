// Package sortkey implements the sortable-key encoding used to recover the
// observation value recorded at the earliest or latest timestamp of a group
// without a dedicated argmin/argmax aggregate.
//
// A key is the concatenation of an ISO-8601 timestamp, a separator, and the
// paired value rendered as text. ISO-8601 timestamps are fixed width and sort
// lexicographically in chronological order, and the separator occurs in
// neither component, so MIN(key)/MAX(key) select the chronologically first
// and last rows of a group, and the value half can be split back out.
//
// When two rows carry the identical timestamp, MIN/MAX tie on the timestamp
// prefix and fall through to value ordering. There is no canonical "first"
// value at a tied instant, so this ambiguity is accepted.
package sortkey

import (
	"fmt"
	"strings"
)

// Separator joins the timestamp and value halves of a key. It must never
// occur inside a timestamp or a rendered value; Encode and ValidateComponent
// enforce this at the Go boundary, and SQL-computed keys inherit the
// guarantee from the constraint values validated at configuration time.
const Separator = "_SeP_"

// ValidateComponent reports an error if s cannot be safely embedded in a key.
func ValidateComponent(s string) error {
	if strings.Contains(s, Separator) {
		return fmt.Errorf("value %q contains the reserved separator %q", s, Separator)
	}
	return nil
}

// Encode builds a sortable key from a timestamp and a value.
func Encode(timestamp, value string) (string, error) {
	if err := ValidateComponent(timestamp); err != nil {
		return "", fmt.Errorf("timestamp: %w", err)
	}
	if err := ValidateComponent(value); err != nil {
		return "", fmt.Errorf("value: %w", err)
	}
	return timestamp + Separator + value, nil
}

// Decode splits a key back into its timestamp and value halves.
func Decode(key string) (timestamp, value string, err error) {
	parts := strings.SplitN(key, Separator, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("key %q does not contain separator %q", key, Separator)
	}
	return parts[0], parts[1], nil
}

// SQLExpr returns a SQL expression computing a key from a timestamp
// expression and a value expression. SQL string concatenation propagates
// NULL, so rows without a value produce a NULL key and are skipped by
// MIN/MAX, leaving the boundary value of the rows that actually carry one.
func SQLExpr(timeExpr, valueExpr string) string {
	return fmt.Sprintf("%s || '%s' || CAST(%s AS VARCHAR)", timeExpr, Separator, valueExpr)
}
