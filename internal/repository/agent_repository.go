package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const agentColumns = `id, company_id, name, email, roles, is_agent, is_admin, active_flag,
               leave_from, leave_to, holidays, created_at, updated_at`

// AgentRepository reads company users that can be routed tickets.
type AgentRepository interface {
	GetByID(ctx context.Context, companyID, id string) (*domain.Agent, error)
	// ListByIDs returns the agents among ids that belong to the company, in the order of ids.
	ListByIDs(ctx context.Context, companyID string, ids []string) ([]domain.Agent, error)
	// ListActiveAgents returns every active user flagged as an agent.
	ListActiveAgents(ctx context.Context, companyID string) ([]domain.Agent, error)
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Agent, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("id", id)
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents`+q.sql(), q.args...).Scan(agentScanTargets(&agent)...); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListByIDs(ctx context.Context, companyID string, ids []string) ([]domain.Agent, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.whereIn("id::text", ids)
	agents, err := r.list(ctx, q)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	ordered := make([]domain.Agent, 0, len(agents))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func (r *agentRepository) ListActiveAgents(ctx context.Context, companyID string) ([]domain.Agent, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("is_agent", true).where("active_flag", true)
	return r.list(ctx, q)
}

func (r *agentRepository) list(ctx context.Context, q *tenantQuery) ([]domain.Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents`+q.sql()+` ORDER BY created_at, id`, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

func agentScanTargets(agent *domain.Agent) []any {
	return []any{
		&agent.ID,
		&agent.CompanyID,
		&agent.Name,
		&agent.Email,
		&agent.Roles,
		&agent.IsAgent,
		&agent.IsAdmin,
		&agent.IsActive,
		&agent.LeaveFrom,
		&agent.LeaveTo,
		&agent.Holidays,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	}
}

func scanAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(agentScanTargets(&agent)...); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}
