package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// NotificationRepository reads in-app agent notifications.
type NotificationRepository interface {
	ListForRecipient(ctx context.Context, companyID, recipientID string, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository instantiates the repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, companyID, recipientID string, limit int) ([]domain.Notification, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("recipient_id", recipientID)
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
        SELECT id, company_id, recipient_id, ticket_id, type, message, created_at, read_at
        FROM notifications%s ORDER BY created_at DESC LIMIT %d`, q.sql(), limit)
	rows, err := r.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.RecipientID, &n.TicketID, &n.Type, &n.Message, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
