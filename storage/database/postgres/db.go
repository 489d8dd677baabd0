// Package pgrepos implements the core repositories on PostgreSQL via sqlx.
package pgrepos

import (
	"strings"

	"github.com/lib/pq"

	"github.com/ecolehq/ecole/core"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// isPqError reports whether err is a pq error with the given code, optionally
// restricted to a named constraint.
func isPqError(err error, code string, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	if string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// orderBy renders orderings as an ORDER BY clause body, falling back to def.
// Ordering fields are restricted to known columns by the API layer.
func orderBy(orderings []core.DBOrdering, def string) string {
	if len(orderings) == 0 {
		return def
	}
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		parts = append(parts, ord.String())
	}
	return strings.Join(parts, ", ")
}
