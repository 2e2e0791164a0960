package analytics

import "errors"

var (
	// ErrDuplicateConstraint is returned when a constraint is added for an
	// observation code that already has one. Constraints are never silently
	// merged or overwritten.
	ErrDuplicateConstraint = errors.New("duplicate observation constraint")

	// ErrUnsupportedEngine is returned by the engine selector for an engine
	// kind without a registered implementation.
	ErrUnsupportedEngine = errors.New("unsupported query engine")

	// ErrNoBackend is returned when a view operation is invoked on a query
	// that was never bound to a concrete execution engine.
	ErrNoBackend = errors.New("patient query has no backend")
)
