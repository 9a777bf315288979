package oracle

import "github.com/google/uuid"

// NewID returns a fresh random identifier for any stored entity (teams,
// matches, models, jackpots, fixtures, predictions, validation results,
// AP tasks). Entities are keyed by these rather than auto-increment
// integers so IA/AP batch writers never have to round-trip a sequence.
func NewID() string {
	return uuid.NewString()
}
