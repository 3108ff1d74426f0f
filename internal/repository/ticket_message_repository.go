package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendorhub/ticket-sync/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	// Create stores msg. When msg carries a ClientID already stored for the
	// ticket, msg is filled from the existing row and created is false.
	Create(ctx context.Context, msg *domain.Message) (created bool, err error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.Message) (bool, error) {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender, body, client_message_id)
        VALUES ($1,$2,$3,NULLIF($4,''))
        ON CONFLICT (ticket_id, client_message_id) WHERE client_message_id IS NOT NULL DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.Sender,
		msg.Body,
		msg.ClientID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || msg.ClientID == "" {
		return false, err
	}

	const existing = `
        SELECT id, sender, body, created_at FROM ticket_messages
        WHERE ticket_id=$1 AND client_message_id=$2`
	if err := r.pool.QueryRow(ctx, existing, msg.TicketID, msg.ClientID).Scan(
		&msg.ID,
		&msg.Sender,
		&msg.Body,
		&msg.CreatedAt,
	); err != nil {
		return false, err
	}
	return false, nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, sender, body, COALESCE(client_message_id, ''), created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Sender,
			&msg.Body,
			&msg.ClientID,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
