package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/waboost/outreach-engine/internal/errors"
	"github.com/waboost/outreach-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	ListByStatus(status string) ([]*model.Campaign, error)
	UpdateStatus(campaignID int, status string) error
	MarkStarted(campaignID int) error
	MarkCompleted(campaignID int) error

	// Counters are incremented atomically in the store.
	IncrementSent(campaignID int) error
	IncrementFailed(campaignID int) error
	IncrementGenerated(campaignID int) error
	IncrementGenerationFailed(campaignID int) error

	// Generation mutex: at most one generation batch per campaign, durable
	// across restarts. TryAcquireGenerationLock reports false without error
	// when the flag is already held.
	TryAcquireGenerationLock(campaignID int) (bool, error)
	ReleaseGenerationLock(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, prompt_template, status, require_review,
       min_interval_seconds, max_interval_seconds, is_generating,
       sent_count, failed_count, generated_count, generation_failed_count,
       created_at, started_at, completed_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.PromptTemplate, &c.Status, &c.RequireReview,
		&c.MinIntervalSeconds, &c.MaxIntervalSeconds, &c.IsGenerating,
		&c.SentCount, &c.FailedCount, &c.GeneratedCount, &c.GenerationFailed,
		&c.CreatedAt, &c.StartedAt, &c.CompletedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	query := `
        INSERT INTO campaigns
            (name, prompt_template, status, require_review,
             min_interval_seconds, max_interval_seconds, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.PromptTemplate, c.Status, c.RequireReview,
		c.MinIntervalSeconds, c.MaxIntervalSeconds, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) ListByStatus(status string) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id ASC`
	rows, err := r.DB.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, campaignID)
	return err
}

func (r *CampaignRepository) MarkStarted(campaignID int) error {
	query := `
        UPDATE campaigns
        SET status=$1, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
        WHERE id=$2
    `
	_, err := r.DB.Exec(query, model.CampaignStatusRunning, campaignID)
	return err
}

func (r *CampaignRepository) MarkCompleted(campaignID int) error {
	query := `
        UPDATE campaigns
        SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2
    `
	_, err := r.DB.Exec(query, model.CampaignStatusCompleted, campaignID)
	return err
}

// ====================== Counters ======================

func (r *CampaignRepository) incrementCounter(campaignID int, column string) error {
	query := fmt.Sprintf(`UPDATE campaigns SET %s=%s+1, updated_at=NOW() WHERE id=$1`, column, column)
	_, err := r.DB.Exec(query, campaignID)
	return err
}

func (r *CampaignRepository) IncrementSent(campaignID int) error {
	return r.incrementCounter(campaignID, "sent_count")
}

func (r *CampaignRepository) IncrementFailed(campaignID int) error {
	return r.incrementCounter(campaignID, "failed_count")
}

func (r *CampaignRepository) IncrementGenerated(campaignID int) error {
	return r.incrementCounter(campaignID, "generated_count")
}

func (r *CampaignRepository) IncrementGenerationFailed(campaignID int) error {
	return r.incrementCounter(campaignID, "generation_failed_count")
}

// ====================== Generation mutex ======================

func (r *CampaignRepository) TryAcquireGenerationLock(campaignID int) (bool, error) {
	query := `
        UPDATE campaigns
        SET is_generating=TRUE, updated_at=NOW()
        WHERE id=$1 AND is_generating=FALSE
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) ReleaseGenerationLock(campaignID int) error {
	query := `UPDATE campaigns SET is_generating=FALSE, updated_at=NOW() WHERE id=$1`
	_, err := r.DB.Exec(query, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
