package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const ticketColumns = `id, company_id, customer_id, customer_email, subject, source, status, priority,
               agent_id, email_thread_id, last_reply_at, last_customer_reply_at, last_agent_reply_at,
               feedback_rating, feedback_sentiment, created_at, updated_at, closed_at`

// TicketRepository encapsulates ticket persistence. Every method is scoped to one company.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// CreateOrGetByThread inserts the ticket unless one already owns its
	// email thread id, in which case the existing ticket is returned.
	CreateOrGetByThread(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error)
	GetByID(ctx context.Context, companyID, id string) (*domain.Ticket, error)
	GetByThreadID(ctx context.Context, companyID, threadID string) (*domain.Ticket, error)
	// ReassignIf moves the ticket to newAgentID only while it is still held by expectedAgentID.
	ReassignIf(ctx context.Context, companyID, ticketID string, expectedAgentID, newAgentID *string) (bool, error)
	UpdateStatus(ctx context.Context, companyID, ticketID string, status domain.TicketStatus, closedAt *time.Time) error
	TouchReply(ctx context.Context, companyID, ticketID string, sender domain.SenderType, at time.Time) error
	ListActiveAssigned(ctx context.Context, companyID, afterID string, limit int) ([]domain.Ticket, error)
	ListByAgent(ctx context.Context, companyID, agentID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := forCompany(ticket.CompanyID); err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (company_id, customer_id, customer_email, subject, source, status, priority, agent_id, email_thread_id, last_reply_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.CompanyID,
		ticket.CustomerID,
		ticket.CustomerEmail,
		ticket.Subject,
		ticket.Source,
		ticket.Status,
		ticket.Priority,
		ticket.AgentID,
		ticket.EmailThreadID,
		ticket.LastReplyAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) CreateOrGetByThread(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	if _, err := forCompany(ticket.CompanyID); err != nil {
		return nil, false, err
	}
	if ticket.EmailThreadID == nil {
		return nil, false, ErrMissingThread
	}
	// xmax = 0 only for freshly inserted rows.
	query := `
        INSERT INTO tickets (company_id, customer_id, customer_email, subject, source, status, priority, agent_id, email_thread_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (company_id, email_thread_id) WHERE email_thread_id IS NOT NULL
        DO UPDATE SET email_thread_id = EXCLUDED.email_thread_id
        RETURNING ` + ticketColumns + `, (xmax = 0) AS inserted`
	row := r.pool.QueryRow(ctx, query,
		ticket.CompanyID,
		ticket.CustomerID,
		ticket.CustomerEmail,
		ticket.Subject,
		ticket.Source,
		ticket.Status,
		ticket.Priority,
		ticket.AgentID,
		ticket.EmailThreadID,
	)
	var stored domain.Ticket
	var inserted bool
	if err := row.Scan(append(ticketScanTargets(&stored), &inserted)...); err != nil {
		return nil, false, err
	}
	return &stored, inserted, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Ticket, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("id", id)
	return r.fetchSingle(ctx, q)
}

func (r *ticketRepository) GetByThreadID(ctx context.Context, companyID, threadID string) (*domain.Ticket, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("email_thread_id", threadID)
	return r.fetchSingle(ctx, q)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, q *tenantQuery) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets` + q.sql()
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, q.args...).Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ReassignIf(ctx context.Context, companyID, ticketID string, expectedAgentID, newAgentID *string) (bool, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return false, err
	}
	set := q.arg(newAgentID)
	q.where("id", ticketID)
	if expectedAgentID == nil {
		q.whereExpr("agent_id IS NULL")
	} else {
		q.where("agent_id", *expectedAgentID)
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET agent_id=`+set+`, updated_at=NOW()`+q.sql(), q.args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, companyID, ticketID string, status domain.TicketStatus, closedAt *time.Time) error {
	q, err := forCompany(companyID)
	if err != nil {
		return err
	}
	statusArg := q.arg(status)
	closedArg := q.arg(closedAt)
	q.where("id", ticketID)
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status=`+statusArg+`, closed_at=`+closedArg+`, updated_at=NOW()`+q.sql(),
		q.args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) TouchReply(ctx context.Context, companyID, ticketID string, sender domain.SenderType, at time.Time) error {
	q, err := forCompany(companyID)
	if err != nil {
		return err
	}
	atArg := q.arg(at)
	column := "last_customer_reply_at"
	if sender == domain.SenderTypeAgent {
		column = "last_agent_reply_at"
	}
	q.where("id", ticketID)
	cmd, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE tickets SET last_reply_at=%s, %s=%s, updated_at=NOW()`, atArg, column, atArg)+q.sql(),
		q.args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListActiveAssigned(ctx context.Context, companyID, afterID string, limit int) ([]domain.Ticket, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	statuses := make([]string, len(domain.ActiveTicketStatuses))
	for i, s := range domain.ActiveTicketStatuses {
		statuses[i] = string(s)
	}
	q.whereIn("status", statuses).whereExpr("agent_id IS NOT NULL")
	if afterID != "" {
		q.whereExpr("id > %s", afterID)
	}
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY id LIMIT %d`, ticketColumns, q.sql(), limit)
	rows, err := r.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByAgent(ctx context.Context, companyID, agentID string) ([]domain.Ticket, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("agent_id", agentID)
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets`+q.sql()+` ORDER BY created_at`, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.CompanyID,
		&ticket.CustomerID,
		&ticket.CustomerEmail,
		&ticket.Subject,
		&ticket.Source,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AgentID,
		&ticket.EmailThreadID,
		&ticket.LastReplyAt,
		&ticket.LastCustomerReplyAt,
		&ticket.LastAgentReplyAt,
		&ticket.FeedbackRating,
		&ticket.FeedbackSentiment,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketScanTargets(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
