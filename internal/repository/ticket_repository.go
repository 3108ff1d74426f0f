package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendorhub/ticket-sync/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	OwnerID    *string
	Statuses   []domain.TicketStatus
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error
	Touch(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketSummary, int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.ticket_number, t.owner_id, t.subject, t.type, t.description,
               t.status, t.priority, t.created_at, t.last_activity`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, owner_id, subject, type, description, status, priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, last_activity`
	return r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.OwnerID,
		ticket.Subject,
		ticket.Type,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.LastActivity)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	const query = `UPDATE tickets SET status=$1, last_activity=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE tickets SET last_activity=GREATEST(last_activity, $1) WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.OwnerID,
		&ticket.Subject,
		&ticket.Type,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.LastActivity,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketSummary, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("t.owner_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.subject) LIKE %s OR LOWER(t.description) LIKE %s OR LOWER(t.ticket_number) LIKE %s)", placeholder, placeholder, placeholder))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s, COALESCE(m.body, ''), m.body IS NOT NULL
             FROM tickets t
             LEFT JOIN LATERAL (
                 SELECT body FROM ticket_messages WHERE ticket_id = t.id ORDER BY created_at DESC LIMIT 1
             ) m ON TRUE
             WHERE %s ORDER BY t.last_activity DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.TicketSummary
	for rows.Next() {
		var s domain.TicketSummary
		if err := rows.Scan(
			&s.ID,
			&s.Number,
			&s.OwnerID,
			&s.Subject,
			&s.Type,
			&s.Description,
			&s.Status,
			&s.Priority,
			&s.CreatedAt,
			&s.LastActivity,
			&s.LastMessage,
			&s.HasLastMessage,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, s)
	}
	return result, total, rows.Err()
}
