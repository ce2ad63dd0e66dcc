package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// CompanyRepository reads tenants. Companies and mailboxes resolve the tenant,
// so their lookups are the only ones not scoped by company_id.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Company, error)
	ListActive(ctx context.Context) ([]domain.Company, error)
}

// MailboxRepository stores Graph-connected mailboxes and their subscriptions.
type MailboxRepository interface {
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Mailbox, error)
	// GetByID returns an active mailbox of the company.
	GetByID(ctx context.Context, companyID, id string) (*domain.Mailbox, error)
	ListActive(ctx context.Context) ([]domain.Mailbox, error)
	SaveSubscription(ctx context.Context, companyID, mailboxID, subscriptionID string, expiresAt time.Time) error
}

type companyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository instantiates the repository.
func NewCompanyRepository(pool *pgxpool.Pool) CompanyRepository {
	return &companyRepository{pool: pool}
}

func (r *companyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	var c domain.Company
	if err := r.pool.QueryRow(ctx, `
        SELECT id, name, webhook_secret_hash, active_flag, created_at, updated_at
        FROM companies WHERE id=$1`, id).Scan(
		&c.ID, &c.Name, &c.WebhookSecretHash, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *companyRepository) ListActive(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, name, webhook_secret_hash, active_flag, created_at, updated_at
        FROM companies WHERE active_flag=TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.WebhookSecretHash, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

type mailboxRepository struct {
	pool *pgxpool.Pool
}

// NewMailboxRepository instantiates the repository.
func NewMailboxRepository(pool *pgxpool.Pool) MailboxRepository {
	return &mailboxRepository{pool: pool}
}

const mailboxColumns = `id, company_id, address, azure_tenant_id, client_id, client_secret, client_state,
               subscription_id, subscription_expires_at, active_flag, created_at, updated_at`

func (r *mailboxRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Mailbox, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE subscription_id=$1 AND active_flag=TRUE`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	boxes, err := scanMailboxes(rows)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &boxes[0], nil
}

func (r *mailboxRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Mailbox, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("id", id).whereExpr("active_flag=TRUE")
	rows, err := r.pool.Query(ctx, `SELECT `+mailboxColumns+` FROM mailboxes`+q.sql(), q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	boxes, err := scanMailboxes(rows)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &boxes[0], nil
}

func (r *mailboxRepository) ListActive(ctx context.Context) ([]domain.Mailbox, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mailboxColumns+` FROM mailboxes WHERE active_flag=TRUE ORDER BY company_id, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMailboxes(rows)
}

func (r *mailboxRepository) SaveSubscription(ctx context.Context, companyID, mailboxID, subscriptionID string, expiresAt time.Time) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE mailboxes SET subscription_id=$1, subscription_expires_at=$2, updated_at=NOW()
        WHERE company_id=$3 AND id=$4`, subscriptionID, expiresAt, companyID, mailboxID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanMailboxes(rows pgx.Rows) ([]domain.Mailbox, error) {
	var result []domain.Mailbox
	for rows.Next() {
		var m domain.Mailbox
		if err := rows.Scan(
			&m.ID,
			&m.CompanyID,
			&m.Address,
			&m.AzureTenantID,
			&m.ClientID,
			&m.ClientSecret,
			&m.ClientState,
			&m.SubscriptionID,
			&m.SubscriptionExpiresAt,
			&m.Active,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
