package session

// EventKind names an input to the transition engine.
type EventKind string

const (
	EventCompletePreFlight EventKind = "complete_preflight"
	EventApprove           EventKind = "approve"
	EventReject            EventKind = "reject"
	EventResolveBlockers   EventKind = "resolve_blockers"
	EventRestart           EventKind = "restart"
	EventSave              EventKind = "save"
	EventEnd               EventKind = "end"
)

// Mutation is a declarative side effect the Store applies after a transition.
type Mutation string

const (
	MutStoreAnswers     Mutation = "store_answers"
	MutRecordPass       Mutation = "record_pass"
	MutAppendFeedback   Mutation = "append_feedback"
	MutResolveBlockers  Mutation = "resolve_blockers"
	MutResetLedger      Mutation = "reset_ledger"
	MutSignalTestReset  Mutation = "signal_test_data_reset"
	MutTakeSnapshot     Mutation = "take_snapshot"
	MutReleaseResources Mutation = "release_resources"
)

// State is the transition-relevant slice of a session.
type State struct {
	Status       Status
	Cursor       int
	QueueLen     int
	OpenBlockers int
}

// Event is one engine input with its payload.
type Event struct {
	Kind          EventKind
	Answers       map[string]string
	Feedback      FeedbackInput
	ResetTestData bool
	Notes         string
}

// Outcome is the engine's decision.
type Outcome struct {
	Status    Status
	Cursor    int
	Mutations []Mutation
}

// Has reports whether the outcome includes m.
func (o Outcome) Has(m Mutation) bool {
	for _, x := range o.Mutations {
		if x == m {
			return true
		}
	}
	return false
}

// InitialStatus returns the status a fresh session starts in.
// An empty queue is already exhausted.
func InitialStatus(queueLen int) Status {
	if queueLen == 0 {
		return StatusCompleted
	}
	return StatusPreFlight
}

// Next maps (state, event) to the next state and its mutations. It performs
// no I/O. State errors take precedence over payload errors.
func Next(s State, ev Event) (Outcome, error) {
	if s.Status == StatusEnded {
		return Outcome{}, invalidStateError(string(ev.Kind), "", s.Status)
	}

	keep := Outcome{Status: s.Status, Cursor: s.Cursor}

	switch ev.Kind {
	case EventCompletePreFlight:
		if s.Status != StatusPreFlight {
			return Outcome{}, invalidStateError(string(ev.Kind), "", s.Status)
		}
		return Outcome{
			Status:    exhausted(s.Cursor, s.QueueLen, StatusTesting),
			Cursor:    s.Cursor,
			Mutations: []Mutation{MutStoreAnswers},
		}, nil

	case EventApprove:
		if s.Status != StatusTesting {
			return Outcome{}, invalidStateError(string(ev.Kind), "", s.Status)
		}
		next := s.Cursor + 1
		return Outcome{
			Status:    exhausted(next, s.QueueLen, StatusTesting),
			Cursor:    next,
			Mutations: []Mutation{MutRecordPass},
		}, nil

	case EventReject:
		if s.Status != StatusTesting {
			return Outcome{}, invalidStateError(string(ev.Kind), "", s.Status)
		}
		fb := ev.Feedback.Normalize()
		if err := fb.Validate(); err != nil {
			return Outcome{}, validationError(string(ev.Kind), "", err)
		}
		if fb.Priority == PriorityBlocker {
			return Outcome{
				Status:    StatusBlocked,
				Cursor:    s.Cursor,
				Mutations: []Mutation{MutAppendFeedback},
			}, nil
		}
		next := s.Cursor + 1
		return Outcome{
			Status:    exhausted(next, s.QueueLen, StatusTesting),
			Cursor:    next,
			Mutations: []Mutation{MutAppendFeedback},
		}, nil

	case EventResolveBlockers:
		if s.Status != StatusBlocked {
			return Outcome{}, invalidStateError(string(ev.Kind), "", s.Status)
		}
		return Outcome{
			Status:    StatusTesting,
			Cursor:    s.Cursor,
			Mutations: []Mutation{MutResolveBlockers},
		}, nil

	case EventRestart:
		muts := []Mutation{MutResetLedger}
		if ev.ResetTestData {
			muts = append(muts, MutSignalTestReset)
		}
		return Outcome{Status: StatusPreFlight, Cursor: 0, Mutations: muts}, nil

	case EventSave:
		keep.Mutations = []Mutation{MutTakeSnapshot}
		return keep, nil

	case EventEnd:
		return Outcome{
			Status:    StatusEnded,
			Cursor:    s.Cursor,
			Mutations: []Mutation{MutReleaseResources},
		}, nil
	}

	return Outcome{}, NewSessionError(CodeValidation, string(ev.Kind), "", "unknown event", nil)
}

func exhausted(cursor, queueLen int, otherwise Status) Status {
	if cursor >= queueLen {
		return StatusCompleted
	}
	return otherwise
}
