// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrGenerationTimeout marks a generator call that was cut off by its
// deadline. Treated like any other generation failure, but distinguishable.
var ErrGenerationTimeout = errors.New("generation timed out")

// ErrGeneratorNotConfigured is returned when no generation credential is
// available. The scheduler must keep running; affected recipients are marked
// failed with this reason.
var ErrGeneratorNotConfigured = errors.New("text generation is not configured")

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrRecipientNotFound is returned for lookups of unknown recipients.
type ErrRecipientNotFound struct {
	RecipientID int
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("recipient with ID %d not found", e.RecipientID)
}

func NewRecipientNotFound(id int) error {
	return &ErrRecipientNotFound{RecipientID: id}
}

// ErrInvalidTransition is returned when a lifecycle operation is attempted
// from a status that does not allow it.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition campaign from %q to %q", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &ErrInvalidTransition{From: from, To: to}
}
