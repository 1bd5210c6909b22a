package repository

import (
	"database/sql"

	"github.com/waboost/outreach-engine/internal/model"
)

// ContactRepositoryInterface defines the lookups the engine needs. The
// engine never creates contacts; an unresolvable contact is a terminal
// failure for the affected recipient or message.
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	FindByPhone(phone string) (*model.Contact, error)
	FindConversation(contactID int) (*model.Conversation, error)
	ListAll() ([]model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

// GetByID fetches a contact by ID. Returns (nil, nil) when absent.
func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, phone, first_name, last_name, location, COALESCE(notes, '')
        FROM contacts
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.Location, &c.Notes); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindByPhone resolves a contact by destination address. Lookup only.
func (r *ContactRepository) FindByPhone(phone string) (*model.Contact, error) {
	query := `
        SELECT id, phone, first_name, last_name, location, COALESCE(notes, '')
        FROM contacts
        WHERE phone = $1
    `
	row := r.DB.QueryRow(query, phone)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.Location, &c.Notes); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindConversation resolves the most recent conversation for a contact.
// Returns (nil, nil) when the contact has none.
func (r *ContactRepository) FindConversation(contactID int) (*model.Conversation, error) {
	query := `
        SELECT id, contact_id, channel
        FROM conversations
        WHERE contact_id = $1
        ORDER BY id DESC
        LIMIT 1
    `
	row := r.DB.QueryRow(query, contactID)

	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.ContactID, &conv.Channel); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListAll fetches all contacts (used when attaching a full audience to a campaign).
func (r *ContactRepository) ListAll() ([]model.Contact, error) {
	query := `
        SELECT id, phone, first_name, last_name, location, COALESCE(notes, '')
        FROM contacts
        ORDER BY id ASC
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.Location, &c.Notes); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
