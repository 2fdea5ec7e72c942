// Package session implements human-in-the-loop verification sessions.
//
// A Store walks an operator through an ordered Queue of checkpoints. Each
// checkpoint is approved or rejected with structured feedback; blocker
// feedback halts progress until ResolveBlockers is called. All state changes
// go through the pure transition function Next, and the Store is the only
// component that applies its outcome.
//
// Collaborators are injected as interfaces:
//
//   - Gateway persists and loads snapshots (see internal/persistence)
//   - TestDataResetter discards test artifacts on restart (see internal/notify)
//   - FieldOptionProvider supplies feedback form fields (see internal/schema)
//
// Consumers read immutable Projections, either by polling the Store or by
// registering an Observer with Subscribe.
package session
