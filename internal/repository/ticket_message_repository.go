package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	// Append stores msg at the end of its ticket thread. It returns false
	// when a message with the same external id already exists on the ticket.
	Append(ctx context.Context, msg *domain.TicketMessage) (bool, error)
	ListByTicket(ctx context.Context, companyID, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Append(ctx context.Context, msg *domain.TicketMessage) (bool, error) {
	if _, err := forCompany(msg.CompanyID); err != nil {
		return false, err
	}
	attachments, err := json.Marshal(nonNilAttachments(msg.Attachments))
	if err != nil {
		return false, err
	}
	const query = `
        INSERT INTO ticket_messages (ticket_id, company_id, sender_type, sender_id, external_email, body, external_message_id, in_reply_to, attachments)
        SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9
        WHERE EXISTS (SELECT 1 FROM tickets WHERE id=$1 AND company_id=$2)
        ON CONFLICT (ticket_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING
        RETURNING id, seq, created_at`
	err = r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.CompanyID,
		msg.SenderType,
		msg.SenderID,
		msg.ExternalEmail,
		msg.Body,
		msg.ExternalMessageID,
		msg.InReplyTo,
		attachments,
	).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, companyID, ticketID string) ([]domain.TicketMessage, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("ticket_id", ticketID)
	query := `
        SELECT id, seq, ticket_id, company_id, sender_type, sender_id, external_email, body,
               external_message_id, in_reply_to, attachments, created_at
        FROM ticket_messages` + q.sql() + ` ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		var attachments []byte
		if err := rows.Scan(
			&msg.ID,
			&msg.Seq,
			&msg.TicketID,
			&msg.CompanyID,
			&msg.SenderType,
			&msg.SenderID,
			&msg.ExternalEmail,
			&msg.Body,
			&msg.ExternalMessageID,
			&msg.InReplyTo,
			&attachments,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
				return nil, err
			}
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func nonNilAttachments(in []domain.Attachment) []domain.Attachment {
	if in == nil {
		return []domain.Attachment{}
	}
	return in
}
