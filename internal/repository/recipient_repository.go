package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/waboost/outreach-engine/internal/model"
)

type RecipientRepositoryInterface interface {
	// BulkCreate attaches contacts to a campaign as pending recipients.
	// Re-attaching an existing (campaign, contact) pair is a no-op; the
	// returned count covers newly created rows only.
	BulkCreate(campaignID int, contactIDs []int) (int, error)

	GetByID(id int) (*model.Recipient, error)
	Update(rec *model.Recipient) error

	// ListPending returns up to limit pending recipients, oldest first.
	ListPending(campaignID, limit int) ([]*model.Recipient, error)

	// NextDue returns the earliest dispatch-eligible recipient: approved and
	// scheduled_at unset or in the past, ordered by scheduled_at then
	// approved_at. Returns (nil, nil) when none is due.
	NextDue(campaignID int, now time.Time) (*model.Recipient, error)

	CountByStatus(campaignID int) (map[string]int, error)

	// CountRemaining counts recipients that still need work; zero means the
	// campaign is complete.
	CountRemaining(campaignID int) (int, error)

	// SentMessageTexts returns the delivered text of every sent recipient in
	// the campaign, for duplicate detection.
	SentMessageTexts(campaignID int) ([]string, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, contact_id, status,
       COALESCE(generated_message, ''), COALESCE(reviewed_message, ''),
       scheduled_at, generated_at, approved_at, sent_at,
       retry_count, COALESCE(error_message, ''), created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Status,
		&rec.GeneratedMessage, &rec.ReviewedMessage,
		&rec.ScheduledAt, &rec.GeneratedAt, &rec.ApprovedAt, &rec.SentAt,
		&rec.RetryCount, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) BulkCreate(campaignID int, contactIDs []int) (int, error) {
	created := 0
	for _, contactID := range contactIDs {
		res, err := r.DB.Exec(`
            INSERT INTO recipients (campaign_id, contact_id, status, retry_count, created_at, updated_at)
            VALUES ($1, $2, $3, 0, NOW(), NOW())
            ON CONFLICT (campaign_id, contact_id) DO NOTHING
        `, campaignID, contactID, model.RecipientStatusPending)
		if err != nil {
			return created, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			created++
		}
	}
	return created, nil
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) Update(rec *model.Recipient) error {
	rec.UpdatedAt = time.Now()
	query := `
        UPDATE recipients
        SET status=$1, generated_message=$2, reviewed_message=$3,
            scheduled_at=$4, generated_at=$5, approved_at=$6, sent_at=$7,
            retry_count=$8, error_message=$9, updated_at=$10
        WHERE id=$11
    `
	_, err := r.DB.Exec(query,
		rec.Status, rec.GeneratedMessage, rec.ReviewedMessage,
		rec.ScheduledAt, rec.GeneratedAt, rec.ApprovedAt, rec.SentAt,
		rec.RetryCount, rec.ErrorMessage, rec.UpdatedAt, rec.ID,
	)
	return err
}

func (r *RecipientRepository) ListPending(campaignID, limit int) ([]*model.Recipient, error) {
	query := `
        SELECT ` + recipientColumns + `
        FROM recipients
        WHERE campaign_id=$1 AND status=$2
        ORDER BY created_at ASC, id ASC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, campaignID, model.RecipientStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) NextDue(campaignID int, now time.Time) (*model.Recipient, error) {
	query := `
        SELECT ` + recipientColumns + `
        FROM recipients
        WHERE campaign_id=$1 AND status=$2
          AND (scheduled_at IS NULL OR scheduled_at <= $3)
        ORDER BY scheduled_at ASC NULLS FIRST, approved_at ASC
        LIMIT 1
    `
	rec, err := scanRecipient(r.DB.QueryRow(query, campaignID, model.RecipientStatusApproved, now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) CountByStatus(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.RecipientStatusPending:        0,
		model.RecipientStatusGenerating:     0,
		model.RecipientStatusAwaitingReview: 0,
		model.RecipientStatusApproved:       0,
		model.RecipientStatusSending:        0,
		model.RecipientStatusSent:           0,
		model.RecipientStatusFailed:         0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *RecipientRepository) CountRemaining(campaignID int) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM recipients
        WHERE campaign_id=$1 AND status = ANY($2)
    `
	remaining := []string{
		model.RecipientStatusPending,
		model.RecipientStatusGenerating,
		model.RecipientStatusAwaitingReview,
		model.RecipientStatusApproved,
		model.RecipientStatusSending,
	}
	var count int
	err := r.DB.QueryRow(query, campaignID, pq.Array(remaining)).Scan(&count)
	return count, err
}

func (r *RecipientRepository) SentMessageTexts(campaignID int) ([]string, error) {
	query := `
        SELECT COALESCE(NULLIF(reviewed_message, ''), generated_message)
        FROM recipients
        WHERE campaign_id=$1 AND status=$2 AND generated_message IS NOT NULL
    `
	rows, err := r.DB.Query(query, campaignID, model.RecipientStatusSent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
