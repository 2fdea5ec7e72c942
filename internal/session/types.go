package session

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle state of a verification session.
type Status string

const (
	StatusPreFlight Status = "PRE_FLIGHT"
	StatusTesting   Status = "TESTING"
	StatusBlocked   Status = "BLOCKED"
	StatusCompleted Status = "COMPLETED"
	StatusEnded     Status = "ENDED"
)

// IsTerminal returns true if no further checkpoint mutation is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusEnded
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPreFlight, StatusTesting, StatusBlocked, StatusCompleted, StatusEnded:
		return true
	}
	return false
}

// Priority is the severity attached to a feedback item.
type Priority string

const (
	PriorityBlocker    Priority = "blocker"
	PriorityNiceToHave Priority = "nice-to-have"
)

// Priorities lists the selectable priorities in display order.
var Priorities = []Priority{PriorityBlocker, PriorityNiceToHave}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityBlocker || p == PriorityNiceToHave
}

// Category classifies a feedback item.
type Category string

const (
	CategoryUI            Category = "ui"
	CategoryLogic         Category = "logic"
	CategoryData          Category = "data"
	CategoryWorkflow      Category = "workflow"
	CategoryPerformance   Category = "performance"
	CategoryAccessibility Category = "accessibility"
	CategoryOther         Category = "other"
)

// Categories lists the fixed category enumeration in display order.
var Categories = []Category{
	CategoryUI,
	CategoryLogic,
	CategoryData,
	CategoryWorkflow,
	CategoryPerformance,
	CategoryAccessibility,
	CategoryOther,
}

// Valid reports whether c is part of the fixed enumeration.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Checkpoint is one verification step. Immutable once loaded.
type Checkpoint struct {
	ID             string `json:"id" yaml:"id" toml:"id"`
	Index          int    `json:"index" yaml:"index" toml:"index"`
	Action         string `json:"action" yaml:"action" toml:"action"`
	ExpectedResult string `json:"expected_result" yaml:"expected_result" toml:"expected_result"`
	Element        string `json:"element,omitempty" yaml:"element,omitempty" toml:"element,omitempty"`
}

// Summary holds outcome counts, recomputed on every mutation.
type Summary struct {
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Blockers   int `json:"blockers"`
	NiceToHave int `json:"nice_to_have"`
}

// Session is the mutable aggregate of one test run.
type Session struct {
	ID               string            `json:"id"`
	FeatureName      string            `json:"feature_name"`
	Status           Status            `json:"status"`
	CurrentIndex     int               `json:"current_index"`
	PreFlightAnswers map[string]string `json:"pre_flight_answers,omitempty"`
	Summary          Summary           `json:"summary"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (s Session) clone() Session {
	out := s
	out.PreFlightAnswers = maps.Clone(s.PreFlightAnswers)
	return out
}

// Progress is derived from the cursor, never stored.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// NewProgress computes progress for a cursor over a queue of total checkpoints.
func NewProgress(current, total int) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		p.Percentage = int(math.Round(float64(current) / float64(total) * 100))
	}
	return p
}

// FeedbackInput is the caller-supplied payload of a rejection.
type FeedbackInput struct {
	Field    string   `json:"field,omitempty"`
	Issue    string   `json:"issue"`
	Expected string   `json:"expected"`
	Priority Priority `json:"priority,omitempty"`
	Category Category `json:"category,omitempty"`
}

// Normalize trims text fields and fills defaults for optional enumerations.
func (in FeedbackInput) Normalize() FeedbackInput {
	in.Field = strings.TrimSpace(in.Field)
	in.Issue = strings.TrimSpace(in.Issue)
	in.Expected = strings.TrimSpace(in.Expected)
	if in.Priority == "" {
		in.Priority = PriorityNiceToHave
	}
	if in.Category == "" {
		in.Category = CategoryOther
	}
	return in
}

// Validate checks the normalized payload.
func (in FeedbackInput) Validate() error {
	if in.Issue == "" {
		return ErrEmptyIssue
	}
	if in.Expected == "" {
		return ErrEmptyExpected
	}
	if !in.Priority.Valid() {
		return ErrInvalidPriority
	}
	if !in.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// FeedbackItem is one immutable entry of the feedback ledger.
type FeedbackItem struct {
	ID              string    `json:"id"`
	CheckpointID    string    `json:"checkpoint_id"`
	CheckpointIndex int       `json:"checkpoint_index"`
	Field           string    `json:"field,omitempty"`
	Issue           string    `json:"issue"`
	Expected        string    `json:"expected"`
	Priority        Priority  `json:"priority"`
	Category        Category  `json:"category"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsBlocker reports whether the item gates progress.
func (f FeedbackItem) IsBlocker() bool {
	return f.Priority == PriorityBlocker
}

// Verdict is the human judgement on a checkpoint.
type Verdict string

const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

// CheckpointResult records one verdict.
type CheckpointResult struct {
	CheckpointID string    `json:"checkpoint_id"`
	Index        int       `json:"index"`
	Verdict      Verdict   `json:"verdict"`
	Notes        string    `json:"notes,omitempty"`
	FeedbackID   string    `json:"feedback_id,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Projection is an immutable read model handed to consumers and observers.
type Projection struct {
	Version  uint64             `json:"version"`
	Session  Session            `json:"session"`
	Current  *Checkpoint        `json:"current,omitempty"`
	Progress Progress           `json:"progress"`
	Blockers []FeedbackItem     `json:"blockers"`
	Feedback []FeedbackItem     `json:"feedback"`
	Results  []CheckpointResult `json:"results"`
}

func (p Projection) clone() Projection {
	out := p
	out.Session = p.Session.clone()
	if p.Current != nil {
		cp := *p.Current
		out.Current = &cp
	}
	out.Blockers = slices.Clone(p.Blockers)
	out.Feedback = slices.Clone(p.Feedback)
	out.Results = slices.Clone(p.Results)
	return out
}

// Status is a shortcut for p.Session.Status.
func (p Projection) Status() Status {
	return p.Session.Status
}

// Snapshot is the durable image of a session handed to a Gateway.
type Snapshot struct {
	SnapshotID string             `json:"snapshot_id"`
	SessionID  string             `json:"session_id"`
	SavedAt    time.Time          `json:"saved_at"`
	Notes      string             `json:"notes,omitempty"`
	Version    uint64             `json:"version"`
	Session    Session            `json:"session"`
	Queue      []Checkpoint       `json:"queue"`
	Ledger     []LedgerEntry      `json:"ledger"`
	Results    []CheckpointResult `json:"results"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Session = s.Session.clone()
	out.Queue = slices.Clone(s.Queue)
	out.Ledger = make([]LedgerEntry, len(s.Ledger))
	for i, e := range s.Ledger {
		out.Ledger[i] = e.clone()
	}
	out.Results = slices.Clone(s.Results)
	return out
}

// Blockers returns the unresolved blocker items recorded in the snapshot.
func (s Snapshot) Blockers() []FeedbackItem {
	return openBlockers(s.Ledger)
}

// SaveResult acknowledges a durable save.
type SaveResult struct {
	SnapshotID string    `json:"snapshot_id"`
	SavedAt    time.Time `json:"saved_at"`
	Version    uint64    `json:"version"`
}
