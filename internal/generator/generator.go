// Package generator turns a campaign prompt and a recipient profile into a
// candidate outbound message via an external text-generation provider.
package generator

import (
	"context"

	appErrors "github.com/waboost/outreach-engine/internal/errors"
)

// Generator is the text-generation capability the buffer manager consumes.
// Implementations must honor context cancellation and surface a deadline as
// appErrors.ErrGenerationTimeout.
type Generator interface {
	Generate(ctx context.Context, prompt, profile string) (string, error)
}

// Disabled is used when no generation credential is configured. Every call
// fails with ErrGeneratorNotConfigured so affected recipients are marked
// failed with that reason while the scheduler keeps running.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt, profile string) (string, error) {
	return "", appErrors.ErrGeneratorNotConfigured
}
