package analytics

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeWindow bounds observation or encounter timestamps. Bounds are
// inclusive ISO-8601 date strings; an empty bound is unbounded. The zero
// value accepts every timestamp.
type TimeWindow struct {
	Min string
	Max string
}

// IsZero reports whether the window has no bounds at all.
func (w TimeWindow) IsZero() bool {
	return w.Min == "" && w.Max == ""
}

// SQL renders the window as a condition over the given timestamp column.
// A window with neither bound compiles to TRUE: every optional filter in
// this package is vacuously satisfied when absent.
func (w TimeWindow) SQL(column string) string {
	if w.IsZero() {
		return "TRUE"
	}
	var cl []string
	if w.Min != "" {
		cl = append(cl, fmt.Sprintf("%s >= %s", column, quoteLiteral(w.Min)))
	}
	if w.Max != "" {
		cl = append(cl, fmt.Sprintf("%s <= %s", column, quoteLiteral(w.Max)))
	}
	return strings.Join(cl, " AND ")
}

// ObservationConstraint filters flattened observations for a single clinical
// code. A constraint is either a coded-value filter (Values set) or a
// numeric-range filter (MinValue/MaxValue); when Values is present it takes
// precedence and the numeric bounds are ignored.
type ObservationConstraint struct {
	Code string

	// Values restricts the observation's coded value. ValueSystem is the
	// coding system the coded value must carry (empty means the coding must
	// have no system).
	Values      []string
	ValueSystem string

	MinValue *float64
	MaxValue *float64

	Window TimeWindow
}

// SQL renders the constraint as a condition over the flattened observation
// columns (effective_time, code, value_code, value_system, value_num).
func (c *ObservationConstraint) SQL() string {
	cl := []string{
		c.Window.SQL("effective_time"),
		fmt.Sprintf("code = %s", quoteLiteral(c.Code)),
	}
	switch {
	case len(c.Values) > 0:
		cl = append(cl, fmt.Sprintf("value_code IN (%s)", quotedList(c.Values)))
		if c.ValueSystem != "" {
			cl = append(cl, fmt.Sprintf("value_system = %s", quoteLiteral(c.ValueSystem)))
		} else {
			cl = append(cl, "value_system IS NULL")
		}
	case c.MinValue != nil || c.MaxValue != nil:
		if c.MinValue != nil {
			cl = append(cl, fmt.Sprintf("value_num >= %s", formatFloat(*c.MinValue)))
		}
		if c.MaxValue != nil {
			cl = append(cl, fmt.Sprintf("value_num <= %s", formatFloat(*c.MaxValue)))
		}
	}
	return "(" + strings.Join(cl, " AND ") + ")"
}

// EncounterConstraint filters flattened encounters. At most one instance is
// active per query; the zero value accepts every encounter.
type EncounterConstraint struct {
	LocationIDs []string
	TypeSystem  string
	TypeCodes   []string
}

// HasLocation reports whether the constraint restricts encounter locations.
// The flatten stage materializes location columns only when this holds (or
// the caller forces them), to avoid duplicating encounters with several
// recorded locations.
func (c EncounterConstraint) HasLocation() bool {
	return len(c.LocationIDs) > 0
}

// HasType reports whether the constraint restricts encounter types.
func (c EncounterConstraint) HasType() bool {
	return len(c.TypeCodes) > 0 || c.TypeSystem != ""
}

// SQL renders the constraint as a condition over the flattened encounter
// columns (location_id, type_code, type_system). Absent sub-constraints
// compile to TRUE.
func (c EncounterConstraint) SQL() string {
	locStr := "TRUE"
	if len(c.LocationIDs) > 0 {
		locStr = fmt.Sprintf("location_id IN (%s)", quotedList(c.LocationIDs))
	}
	typeCodeStr := "TRUE"
	if len(c.TypeCodes) > 0 {
		typeCodeStr = fmt.Sprintf("type_code IN (%s)", quotedList(c.TypeCodes))
	}
	typeSysStr := "TRUE"
	if c.TypeSystem != "" {
		typeSysStr = fmt.Sprintf("type_system = %s", quoteLiteral(c.TypeSystem))
	}
	return fmt.Sprintf("%s AND %s AND %s", locStr, typeCodeStr, typeSysStr)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float64 returns a pointer to v, for use with the optional numeric bounds.
func Float64(v float64) *float64 {
	return &v
}
