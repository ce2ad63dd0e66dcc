package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrMissingTenant is returned when a tenant-owned table is queried without a company id.
	ErrMissingTenant = errors.New("company id required")
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrMissingThread is returned when thread-keyed creation has no thread id.
	ErrMissingThread = errors.New("email thread id required")
	// ErrEmptyPool is returned when a round-robin cursor is advanced over no agents.
	ErrEmptyPool = errors.New("agent pool is empty")
)

// tenantQuery is the only way to build WHERE clauses for tenant-owned tables
// (tickets, ticket_messages, agents, customers, ticket_feedback, notifications).
// The company predicate is always $1.
type tenantQuery struct {
	clauses []string
	args    []any
}

func forCompany(companyID string) (*tenantQuery, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, ErrMissingTenant
	}
	return &tenantQuery{
		clauses: []string{"company_id=$1"},
		args:    []any{companyID},
	}, nil
}

// arg registers a positional argument and returns its placeholder.
func (q *tenantQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *tenantQuery) where(column string, value any) *tenantQuery {
	q.clauses = append(q.clauses, fmt.Sprintf("%s=%s", column, q.arg(value)))
	return q
}

// whereExpr adds an expression whose %s verbs are replaced by placeholders for values.
func (q *tenantQuery) whereExpr(expr string, values ...any) *tenantQuery {
	placeholders := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = q.arg(v)
	}
	q.clauses = append(q.clauses, fmt.Sprintf(expr, placeholders...))
	return q
}

func (q *tenantQuery) whereIn(column string, values []string) *tenantQuery {
	if len(values) == 0 {
		q.clauses = append(q.clauses, "FALSE")
		return q
	}
	return q.whereExpr(column+" = ANY(%s)", values)
}

func (q *tenantQuery) sql() string {
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
