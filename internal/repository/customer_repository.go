package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const customerColumns = `id, company_id, name, email, assigned_agents, last_assigned_agent_index, created_at, updated_at`

// CustomerRepository handles customer lookups and the round-robin cursor.
type CustomerRepository interface {
	GetByID(ctx context.Context, companyID, id string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, companyID, email string) (*domain.Customer, error)
	// AdvanceCursor atomically sets last_assigned_agent_index to
	// (last_assigned_agent_index + 1) mod poolSize and returns the new value.
	AdvanceCursor(ctx context.Context, companyID, customerID string, poolSize int) (int, error)
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository instantiates the repository.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Customer, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("id", id)
	return r.fetchSingle(ctx, q)
}

func (r *customerRepository) GetByEmail(ctx context.Context, companyID, email string) (*domain.Customer, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.whereExpr("LOWER(email)=%s", strings.ToLower(strings.TrimSpace(email)))
	return r.fetchSingle(ctx, q)
}

func (r *customerRepository) fetchSingle(ctx context.Context, q *tenantQuery) (*domain.Customer, error) {
	var c domain.Customer
	if err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers`+q.sql(), q.args...).Scan(
		&c.ID,
		&c.CompanyID,
		&c.Name,
		&c.Email,
		&c.AssignedAgents,
		&c.LastAssignedAgentIndex,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepository) AdvanceCursor(ctx context.Context, companyID, customerID string, poolSize int) (int, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return 0, err
	}
	if poolSize <= 0 {
		return 0, ErrEmptyPool
	}
	size := q.arg(poolSize)
	q.where("id", customerID)
	// GREATEST guards against a cursor left negative by manual edits.
	query := `UPDATE customers
        SET last_assigned_agent_index = (GREATEST(last_assigned_agent_index, -1) + 1) % ` + size + `, updated_at = NOW()` +
		q.sql() + ` RETURNING last_assigned_agent_index`
	var next int
	if err := r.pool.QueryRow(ctx, query, q.args...).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}
