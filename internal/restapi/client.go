package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/api/dto"
	"github.com/vendorhub/ticket-sync/internal/domain"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

const maxResponseBytes = 4 << 20

// ListQuery filters the ticket list.
type ListQuery struct {
	Status domain.StatusBucket
	Search string
	Page   int
	Limit  int
}

// CreateTicketInput describes a new ticket.
type CreateTicketInput struct {
	Subject     string
	Type        string
	Priority    domain.TicketPriority
	Description string
}

// Client talks to the ticket REST API with a bearer credential.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.client = &http.Client{Timeout: d}
		}
	}
}

// New creates a client for baseURL (for example http://host/api).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTickets fetches one page of ticket summaries.
func (c *Client) ListTickets(ctx context.Context, q ListQuery) (domain.TicketPage, error) {
	params := url.Values{}
	status := q.Status
	if status == "" {
		status = domain.BucketAll
	}
	params.Set("status", string(status))
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var out dto.TicketListResponse
	if err := c.do(ctx, http.MethodGet, "/tickets?"+params.Encode(), nil, &out); err != nil {
		return domain.TicketPage{}, err
	}
	return out.ToDomain(), nil
}

// GetTicket fetches ticket metadata and its full message thread.
func (c *Client) GetTicket(ctx context.Context, id string) (domain.TicketDetail, error) {
	var out dto.TicketDetailResponse
	if err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.TicketDetail{}, err
	}
	return out.ToDomain(), nil
}

// CreateTicket opens a new ticket.
func (c *Client) CreateTicket(ctx context.Context, in CreateTicketInput) (domain.Ticket, error) {
	req := dto.CreateTicketRequest{
		Subject:     in.Subject,
		Type:        in.Type,
		Priority:    in.Priority,
		Description: in.Description,
	}
	var out dto.TicketResponse
	if err := c.do(ctx, http.MethodPost, "/tickets", req, &out); err != nil {
		return domain.Ticket{}, err
	}
	return out.ToDomain(), nil
}

// SendMessage posts a message to a ticket thread. A non-empty
// clientMessageID lets the server collapse retries of the same send.
func (c *Client) SendMessage(ctx context.Context, ticketID, text, clientMessageID string) (domain.Message, error) {
	var out dto.TicketMessageResponse
	path := "/tickets/" + url.PathEscape(ticketID) + "/messages"
	req := dto.CreateMessageRequest{Message: text, ClientMessageID: clientMessageID}
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return domain.Message{}, err
	}
	msg := out.ToDomain()
	if msg.TicketID == "" {
		msg.TicketID = ticketID
	}
	return msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return apperrors.NewTransportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.NewTransportError("read response", err)
	}

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("api response not an envelope",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apperrors.NewRequestError(fmt.Sprintf("unexpected response (status %d)", resp.StatusCode), resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("api request rejected",
			zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return apperrors.NewRequestError(msg, resp.StatusCode, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.NewRequestError("malformed response data", resp.StatusCode, err)
	}
	return nil
}
