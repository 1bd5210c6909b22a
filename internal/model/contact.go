// internal/model/contact.go
package model

type Contact struct {
	ID        int    `db:"id" json:"id"`
	Phone     string `db:"phone" json:"phone"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Location  string `db:"location" json:"location"`
	Notes     string `db:"notes" json:"notes"`
}

// Conversation links a contact to an external chat thread on the channel.
type Conversation struct {
	ID        int    `db:"id" json:"id"`
	ContactID int    `db:"contact_id" json:"contact_id"`
	Channel   string `db:"channel" json:"channel"`
}
