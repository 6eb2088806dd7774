package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// constraintError returns the sentinel registered for the violated
// constraint, or nil when err is not a mapped violation.
func constraintError(err error, code string, byConstraint map[string]error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return nil
	}
	return byConstraint[pgErr.ConstraintName]
}

// filter accumulates AND-ed WHERE conditions with positional arguments.
type filter struct {
	conds []string
	args  []any
}

// add appends cond with its single argument referenced as %s.
func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(f.args))))
}

// raw appends a condition without arguments.
func (f *filter) raw(cond string) {
	f.conds = append(f.conds, cond)
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.conds, " AND ")
}

// page appends LIMIT and OFFSET placeholders and returns the clause with the
// full argument list.
func (f *filter) page(limit, offset int) (string, []any) {
	args := append(append([]any(nil), f.args...), limit, offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

// likePattern escapes LIKE metacharacters and wraps q for a contains match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
