package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/waboost/outreach-engine/internal/model"
)

type ApiMessageRepositoryInterface interface {
	// CreateIfAbsent inserts the message unless a row with the same
	// request_id already exists. The insert races safely against concurrent
	// duplicate submissions via the unique index; the loser reads back the
	// winner's row. Returns (message, created, error).
	CreateIfAbsent(msg *model.ApiMessage) (*model.ApiMessage, bool, error)

	GetByRequestID(requestID string) (*model.ApiMessage, error)
	Update(msg *model.ApiMessage) error

	// NextQueued pops the highest-priority due message: queued status,
	// scheduled_at unset or past, ordered by priority DESC then created_at.
	// Returns (nil, nil) when the queue is empty.
	NextQueued(now time.Time) (*model.ApiMessage, error)
}

type ApiMessageRepository struct {
	DB *sql.DB
}

const apiMessageColumns = `id, request_id, phone_number, message, priority, status,
       scheduled_at, contact_id, conversation_id,
       COALESCE(external_message_id, ''), COALESCE(error_message, ''),
       metadata, sent_at, created_at, updated_at`

func scanApiMessage(row interface{ Scan(...any) error }) (*model.ApiMessage, error) {
	var m model.ApiMessage
	err := row.Scan(
		&m.ID, &m.RequestID, &m.PhoneNumber, &m.Message, &m.Priority, &m.Status,
		&m.ScheduledAt, &m.ContactID, &m.ConversationID,
		&m.ExternalMessageID, &m.ErrorMessage,
		&m.Metadata, &m.SentAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ApiMessageRepository) CreateIfAbsent(msg *model.ApiMessage) (*model.ApiMessage, bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = model.ApiMessageStatusQueued
	}
	query := `
        INSERT INTO api_messages
            (id, request_id, phone_number, message, priority, status,
             scheduled_at, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        ON CONFLICT (request_id) DO NOTHING
        RETURNING created_at, updated_at
    `
	err := r.DB.QueryRow(query,
		msg.ID, msg.RequestID, msg.PhoneNumber, msg.Message, msg.Priority,
		msg.Status, msg.ScheduledAt, msg.Metadata,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err == nil {
		return msg, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	// Conflict: return the winner's row untouched.
	existing, err := r.GetByRequestID(msg.RequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ApiMessageRepository) GetByRequestID(requestID string) (*model.ApiMessage, error) {
	query := `SELECT ` + apiMessageColumns + ` FROM api_messages WHERE request_id=$1`
	m, err := scanApiMessage(r.DB.QueryRow(query, requestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *ApiMessageRepository) Update(msg *model.ApiMessage) error {
	msg.UpdatedAt = time.Now()
	query := `
        UPDATE api_messages
        SET status=$1, scheduled_at=$2, contact_id=$3, conversation_id=$4,
            external_message_id=$5, error_message=$6, sent_at=$7, updated_at=$8
        WHERE id=$9
    `
	_, err := r.DB.Exec(query,
		msg.Status, msg.ScheduledAt, msg.ContactID, msg.ConversationID,
		msg.ExternalMessageID, msg.ErrorMessage, msg.SentAt, msg.UpdatedAt,
		msg.ID,
	)
	return err
}

func (r *ApiMessageRepository) NextQueued(now time.Time) (*model.ApiMessage, error) {
	query := `
        SELECT ` + apiMessageColumns + `
        FROM api_messages
        WHERE status=$1 AND (scheduled_at IS NULL OR scheduled_at <= $2)
        ORDER BY priority DESC, created_at ASC
        LIMIT 1
    `
	m, err := scanApiMessage(r.DB.QueryRow(query, model.ApiMessageStatusQueued, now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

var _ ApiMessageRepositoryInterface = (*ApiMessageRepository)(nil)
