package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// FeedbackRepository persists ticket feedback together with its side effects.
type FeedbackRepository interface {
	GetByTicket(ctx context.Context, companyID, ticketID string) (*domain.TicketFeedback, error)
	// Submit stores feedback, copies rating and sentiment onto the ticket and
	// inserts the optional notification in one transaction. ErrDuplicate is
	// returned when the ticket already has feedback.
	Submit(ctx context.Context, feedback *domain.TicketFeedback, alert *domain.Notification) error
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository instantiates the repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

func (r *feedbackRepository) GetByTicket(ctx context.Context, companyID, ticketID string) (*domain.TicketFeedback, error) {
	q, err := forCompany(companyID)
	if err != nil {
		return nil, err
	}
	q.where("ticket_id", ticketID)
	var fb domain.TicketFeedback
	if err := r.pool.QueryRow(ctx, `
        SELECT id, ticket_id, company_id, customer_email, rating, comment, sentiment, created_at
        FROM ticket_feedback`+q.sql(), q.args...).Scan(
		&fb.ID,
		&fb.TicketID,
		&fb.CompanyID,
		&fb.CustomerEmail,
		&fb.Rating,
		&fb.Comment,
		&fb.Sentiment,
		&fb.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &fb, nil
}

func (r *feedbackRepository) Submit(ctx context.Context, feedback *domain.TicketFeedback, alert *domain.Notification) (err error) {
	q, err := forCompany(feedback.CompanyID)
	if err != nil {
		return err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        INSERT INTO ticket_feedback (ticket_id, company_id, customer_email, rating, comment, sentiment)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`,
		feedback.TicketID,
		feedback.CompanyID,
		feedback.CustomerEmail,
		feedback.Rating,
		feedback.Comment,
		feedback.Sentiment,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	rating := q.arg(feedback.Rating)
	sentiment := q.arg(feedback.Sentiment)
	q.where("id", feedback.TicketID)
	cmd, err := tx.Exec(ctx,
		`UPDATE tickets SET feedback_rating=`+rating+`, feedback_sentiment=NULLIF(`+sentiment+`, ''), updated_at=NOW()`+q.sql(),
		q.args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if alert != nil {
		if alert.CompanyID != feedback.CompanyID {
			return errors.New("notification company mismatch")
		}
		err = tx.QueryRow(ctx, `
            INSERT INTO notifications (company_id, recipient_id, ticket_id, type, message)
            VALUES ($1,$2,$3,$4,$5)
            RETURNING id, created_at`,
			alert.CompanyID,
			alert.RecipientID,
			alert.TicketID,
			alert.Type,
			alert.Message,
		).Scan(&alert.ID, &alert.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
