// internal/service/prompt.go
package service

import (
	"fmt"
	"strings"

	"github.com/waboost/outreach-engine/internal/model"
)

// RenderPrompt fills contact placeholders into a campaign prompt template.
func RenderPrompt(template string, contact *model.Contact) string {
	result := template
	for k, v := range map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
		"location":   contact.Location,
	} {
		if v == "" {
			v = "N/A"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// ContactProfile summarizes a contact for the generator.
func ContactProfile(contact *model.Contact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s %s", contact.FirstName, contact.LastName)
	if contact.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", contact.Location)
	}
	if contact.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", contact.Notes)
	}
	return b.String()
}
