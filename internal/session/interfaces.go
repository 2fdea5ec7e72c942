package session

import "context"

// Gateway durably stores and retrieves session snapshots.
type Gateway interface {
	// Save persists snapshot. The Store never mutates a snapshot after handing it off.
	Save(ctx context.Context, snapshot Snapshot) error
	// Load returns the latest snapshot for sessionID, or a NotFoundError.
	Load(ctx context.Context, sessionID string) (Snapshot, error)
}

// TestDataResetter discards test artifacts accumulated by the feature under test.
type TestDataResetter interface {
	ResetTestData(ctx context.Context, sessionID string) error
}

// NopResetter acknowledges every reset without doing anything.
type NopResetter struct{}

// ResetTestData always succeeds.
func (NopResetter) ResetTestData(context.Context, string) error { return nil }

// FieldOptionProvider supplies the selectable field names of the feedback form.
type FieldOptionProvider interface {
	FieldOptions(ctx context.Context) ([]FieldOption, error)
}

// Observer receives an immutable projection after every committed mutation.
// Observers run on the mutating goroutine and must not call mutating Store
// operations.
type Observer func(Projection)
