package analytics

import (
	"fmt"
	"strings"
)

// observationPredicateSQL renders all observation constraints as one boolean
// condition over the flattened observation columns.
//
// Each registered code contributes its own conjunction and the codes are
// ORed together in registration order, so generated text is deterministic.
// With the catch-all enabled, observations under any unregistered code are
// additionally admitted subject to the catch-all's own time window. With no
// registered codes the predicate collapses to TRUE or FALSE depending on the
// catch-all: an empty constraint set with the catch-all disabled means
// "nothing requested" and fails closed.
func (q *PatientQuery) observationPredicateSQL() string {
	if len(q.codeOrder) == 0 {
		if q.includeAllOther {
			if q.allOtherWindow.IsZero() {
				return "TRUE"
			}
			return q.allOtherWindow.SQL("effective_time")
		}
		return "FALSE"
	}

	perCode := make([]string, 0, len(q.codeOrder))
	for _, code := range q.codeOrder {
		perCode = append(perCode, q.constraints[code].SQL())
	}
	registered := strings.Join(perCode, " OR ")
	if !q.includeAllOther {
		return "(" + registered + ")"
	}

	others := make([]string, 0, len(q.codeOrder)+1)
	for _, code := range q.codeOrder {
		others = append(others, fmt.Sprintf("code != %s", quoteLiteral(code)))
	}
	others = append(others, q.allOtherWindow.SQL("effective_time"))
	return fmt.Sprintf("(%s OR (%s))", registered, strings.Join(others, " AND "))
}

// PredicateSQL renders the combined predicate for the observation view: the
// observation predicate ANDed with the encounter predicate, applied after
// the two flattened streams are joined on the encounter identifier.
func (q *PatientQuery) PredicateSQL() string {
	return fmt.Sprintf("%s AND %s", q.observationPredicateSQL(), q.encounter.SQL())
}
