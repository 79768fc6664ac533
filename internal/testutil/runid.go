package testutil

// FixedRunID generates the same run ID every time.
//
// Golden traces embed the run ID, so scenario runs must not use UUIDs.
// Implements engine.RunIDGenerator.
type FixedRunID string

// DefaultRunID is used when a scenario does not set run_id.
const DefaultRunID = "test-run-default"

// NewFixedRunID returns a FixedRunID, falling back to DefaultRunID for "".
func NewFixedRunID(id string) FixedRunID {
	if id == "" {
		return DefaultRunID
	}
	return FixedRunID(id)
}

// Generate returns the fixed run ID.
func (g FixedRunID) Generate() string {
	return string(g)
}
