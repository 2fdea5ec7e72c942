package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, InitialStatus(0))
	assert.Equal(t, StatusPreFlight, InitialStatus(3))
}

func TestNext_Table(t *testing.T) {
	blocker := FeedbackInput{Issue: "broken", Expected: "works", Priority: PriorityBlocker}
	minor := FeedbackInput{Issue: "ugly", Expected: "pretty"}

	tests := []struct {
		name       string
		state      State
		event      Event
		wantStatus Status
		wantCursor int
		wantMuts   []Mutation
	}{
		{
			name:       "preflight starts testing",
			state:      State{Status: StatusPreFlight, QueueLen: 3},
			event:      Event{Kind: EventCompletePreFlight},
			wantStatus: StatusTesting,
			wantMuts:   []Mutation{MutStoreAnswers},
		},
		{
			name:       "preflight on empty queue completes",
			state:      State{Status: StatusPreFlight, QueueLen: 0},
			event:      Event{Kind: EventCompletePreFlight},
			wantStatus: StatusCompleted,
			wantMuts:   []Mutation{MutStoreAnswers},
		},
		{
			name:       "approve advances",
			state:      State{Status: StatusTesting, Cursor: 0, QueueLen: 3},
			event:      Event{Kind: EventApprove},
			wantStatus: StatusTesting,
			wantCursor: 1,
			wantMuts:   []Mutation{MutRecordPass},
		},
		{
			name:       "approve last completes",
			state:      State{Status: StatusTesting, Cursor: 2, QueueLen: 3},
			event:      Event{Kind: EventApprove},
			wantStatus: StatusCompleted,
			wantCursor: 3,
			wantMuts:   []Mutation{MutRecordPass},
		},
		{
			name:       "blocker holds cursor",
			state:      State{Status: StatusTesting, Cursor: 1, QueueLen: 3},
			event:      Event{Kind: EventReject, Feedback: blocker},
			wantStatus: StatusBlocked,
			wantCursor: 1,
			wantMuts:   []Mutation{MutAppendFeedback},
		},
		{
			name:       "nice-to-have advances",
			state:      State{Status: StatusTesting, Cursor: 1, QueueLen: 3},
			event:      Event{Kind: EventReject, Feedback: minor},
			wantStatus: StatusTesting,
			wantCursor: 2,
			wantMuts:   []Mutation{MutAppendFeedback},
		},
		{
			name:       "nice-to-have on last completes",
			state:      State{Status: StatusTesting, Cursor: 2, QueueLen: 3},
			event:      Event{Kind: EventReject, Feedback: minor},
			wantStatus: StatusCompleted,
			wantCursor: 3,
			wantMuts:   []Mutation{MutAppendFeedback},
		},
		{
			name:       "resolve returns to testing at same cursor",
			state:      State{Status: StatusBlocked, Cursor: 1, QueueLen: 3, OpenBlockers: 2},
			event:      Event{Kind: EventResolveBlockers},
			wantStatus: StatusTesting,
			wantCursor: 1,
			wantMuts:   []Mutation{MutResolveBlockers},
		},
		{
			name:       "restart from blocked",
			state:      State{Status: StatusBlocked, Cursor: 2, QueueLen: 3, OpenBlockers: 1},
			event:      Event{Kind: EventRestart},
			wantStatus: StatusPreFlight,
			wantMuts:   []Mutation{MutResetLedger},
		},
		{
			name:       "restart with reset signal",
			state:      State{Status: StatusCompleted, Cursor: 3, QueueLen: 3},
			event:      Event{Kind: EventRestart, ResetTestData: true},
			wantStatus: StatusPreFlight,
			wantMuts:   []Mutation{MutResetLedger, MutSignalTestReset},
		},
		{
			name:       "save keeps state",
			state:      State{Status: StatusBlocked, Cursor: 1, QueueLen: 3, OpenBlockers: 1},
			event:      Event{Kind: EventSave},
			wantStatus: StatusBlocked,
			wantCursor: 1,
			wantMuts:   []Mutation{MutTakeSnapshot},
		},
		{
			name:       "end from testing",
			state:      State{Status: StatusTesting, Cursor: 1, QueueLen: 3},
			event:      Event{Kind: EventEnd},
			wantStatus: StatusEnded,
			wantCursor: 1,
			wantMuts:   []Mutation{MutReleaseResources},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Next(tt.state, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantCursor, out.Cursor)
			assert.Equal(t, tt.wantMuts, out.Mutations)
		})
	}
}

func TestNext_InvalidState(t *testing.T) {
	valid := FeedbackInput{Issue: "x", Expected: "y"}
	tests := []struct {
		name   string
		status Status
		kind   EventKind
	}{
		{"preflight while testing", StatusTesting, EventCompletePreFlight},
		{"approve in preflight", StatusPreFlight, EventApprove},
		{"approve while blocked", StatusBlocked, EventApprove},
		{"approve when completed", StatusCompleted, EventApprove},
		{"reject while blocked", StatusBlocked, EventReject},
		{"reject when completed", StatusCompleted, EventReject},
		{"resolve while testing", StatusTesting, EventResolveBlockers},
		{"resolve in preflight", StatusPreFlight, EventResolveBlockers},
		{"restart when ended", StatusEnded, EventRestart},
		{"save when ended", StatusEnded, EventSave},
		{"end when ended", StatusEnded, EventEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(State{Status: tt.status, QueueLen: 3}, Event{Kind: tt.kind, Feedback: valid})
			require.Error(t, err)
			assert.True(t, IsInvalidState(err), "got %v", err)
		})
	}
}

func TestNext_StateErrorPrecedesPayloadError(t *testing.T) {
	bad := FeedbackInput{Issue: "  ", Expected: ""}

	_, err := Next(State{Status: StatusEnded, QueueLen: 2}, Event{Kind: EventReject, Feedback: bad})
	assert.True(t, IsInvalidState(err))

	_, err = Next(State{Status: StatusBlocked, QueueLen: 2}, Event{Kind: EventReject, Feedback: bad})
	assert.True(t, IsInvalidState(err))

	_, err = Next(State{Status: StatusTesting, QueueLen: 2}, Event{Kind: EventReject, Feedback: bad})
	assert.True(t, IsValidation(err))
}

func TestNext_RejectValidation(t *testing.T) {
	state := State{Status: StatusTesting, QueueLen: 2}
	tests := []struct {
		name    string
		input   FeedbackInput
		wantErr error
	}{
		{"whitespace issue", FeedbackInput{Issue: "   ", Expected: "y"}, ErrEmptyIssue},
		{"missing expected", FeedbackInput{Issue: "x"}, ErrEmptyExpected},
		{"unknown priority", FeedbackInput{Issue: "x", Expected: "y", Priority: "urgent"}, ErrInvalidPriority},
		{"unknown category", FeedbackInput{Issue: "x", Expected: "y", Category: "security"}, ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(state, Event{Kind: EventReject, Feedback: tt.input})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNext_UnknownEvent(t *testing.T) {
	_, err := Next(State{Status: StatusTesting, QueueLen: 1}, Event{Kind: "teleport"})
	assert.True(t, IsValidation(err))
}

func TestOutcome_Has(t *testing.T) {
	out := Outcome{Mutations: []Mutation{MutResetLedger, MutSignalTestReset}}
	assert.True(t, out.Has(MutSignalTestReset))
	assert.False(t, out.Has(MutTakeSnapshot))
}
