package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConcurrencyPolicy selects what happens to a mutating call that arrives
// while another is being applied.
type ConcurrencyPolicy string

const (
	// PolicyQueue blocks the second caller until the first completes.
	PolicyQueue ConcurrencyPolicy = "queue"
	// PolicyReject fails the second caller with ConcurrentModificationError.
	PolicyReject ConcurrencyPolicy = "reject"
)

// Config holds Store tuning.
type Config struct {
	ConcurrencyPolicy ConcurrencyPolicy `json:"concurrency_policy" koanf:"concurrency_policy"`
	PersistTimeout    time.Duration     `json:"persist_timeout" koanf:"persist_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConcurrencyPolicy: PolicyQueue,
		PersistTimeout:    10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.ConcurrencyPolicy {
	case PolicyQueue, PolicyReject:
	default:
		return fmt.Errorf("concurrency_policy must be %q or %q, got %q", PolicyQueue, PolicyReject, c.ConcurrencyPolicy)
	}
	if c.PersistTimeout < 0 {
		return errors.New("persist_timeout cannot be negative")
	}
	return nil
}

// Store owns one session: its queue cursor, feedback ledger and results.
// It is the only mutator of that state and the only caller of Next.
type Store struct {
	id       string
	queue    *Queue
	gateway  Gateway
	resetter TestDataResetter
	fields   FieldOptionProvider
	config   *Config
	logger   *Logger
	metrics  *Metrics
	now      func() time.Time
	newID    func() string

	// writeMu serializes mutations; mu guards the state read by projections.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	session  Session
	ledger   []LedgerEntry
	results  []CheckpointResult
	version  uint64
	lastSave *SaveResult

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObs   uint64

	pendingMu   sync.Mutex
	pending     map[uint64]*handoff
	nextPending uint64
}

type handoff struct {
	cancel    context.CancelFunc
	abandoned bool
}

// Option configures a Store.
type Option func(*Store)

// WithGateway sets the persistence gateway used by SaveProgress.
func WithGateway(g Gateway) Option {
	return func(s *Store) { s.gateway = g }
}

// WithTestDataResetter sets the collaborator signalled by RestartSession(true).
func WithTestDataResetter(r TestDataResetter) Option {
	return func(s *Store) { s.resetter = r }
}

// WithFieldOptions sets the feedback schema provider.
func WithFieldOptions(p FieldOptionProvider) Option {
	return func(s *Store) { s.fields = p }
}

// WithConfig sets Store tuning.
func WithConfig(c *Config) Option {
	return func(s *Store) {
		if c != nil {
			s.config = c
		}
	}
}

// WithConcurrencyPolicy overrides the configured concurrency policy.
func WithConcurrencyPolicy(p ConcurrencyPolicy) Option {
	return func(s *Store) {
		cfg := *s.config
		cfg.ConcurrencyPolicy = p
		s.config = &cfg
	}
}

// WithLogger sets a zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = NewLogger(l) }
}

// WithMetrics sets custom metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides identifier generation for feedback items and snapshots.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(s *Store) { s.id = id }
}

func newStore(queue *Queue, opts ...Option) *Store {
	metrics, _ := NewMetrics(nil)
	s := &Store{
		queue:     queue,
		resetter:  NopResetter{},
		config:    DefaultConfig(),
		logger:    NewLogger(nil),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		ledger:    []LedgerEntry{},
		results:   []CheckpointResult{},
		observers: make(map[uint64]Observer),
		pending:   make(map[uint64]*handoff),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = "vs_" + uuid.New().String()
	}
	if s.resetter == nil {
		s.resetter = NopResetter{}
	}
	return s
}

// New starts a session over queue for featureName.
func New(ctx context.Context, featureName string, queue *Queue, opts ...Option) (*Store, error) {
	if queue == nil {
		return nil, NewSessionError(CodeValidation, "new", "", "queue is required", ErrInvalidQueue)
	}
	s := newStore(queue, opts...)
	if err := s.config.Validate(); err != nil {
		return nil, NewSessionError(CodeValidation, "new", s.id, "invalid config", err)
	}
	now := s.now()
	s.session = Session{
		ID:          s.id,
		FeatureName: strings.TrimSpace(featureName),
		Status:      InitialStatus(queue.Len()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.metrics.RecordOpened(ctx)
	s.logger.Debug(ctx, "session created",
		zap.String("session_id", s.id),
		zap.Int("checkpoints", queue.Len()),
		zap.String("status", string(s.session.Status)),
	)
	return s, nil
}

// Resume rebuilds a Store from the latest snapshot held by gateway.
// The gateway is also installed on the resumed Store.
func Resume(ctx context.Context, gateway Gateway, sessionID string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("resume", "", ErrEmptySessionID)
	}
	if gateway == nil {
		return nil, persistenceError("resume", sessionID, ErrNoGateway)
	}
	snap, err := gateway.Load(ctx, sessionID)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, persistenceError("resume", sessionID, err)
	}
	queue, err := NewQueue(snap.Queue)
	if err != nil {
		return nil, err
	}
	if err := checkSnapshot(snap, queue.Len()); err != nil {
		return nil, validationError("resume", sessionID, err)
	}

	opts = append([]Option{WithGateway(gateway)}, opts...)
	opts = append(opts, WithSessionID(snap.SessionID))
	s := newStore(queue, opts...)
	if err := s.config.Validate(); err != nil {
		return nil, NewSessionError(CodeValidation, "resume", s.id, "invalid config", err)
	}
	restored := snap.Clone()
	s.session = restored.Session
	s.ledger = restored.Ledger
	s.results = restored.Results
	s.version = restored.Version
	s.lastSave = &SaveResult{SnapshotID: snap.SnapshotID, SavedAt: snap.SavedAt, Version: snap.Version}
	if s.ledger == nil {
		s.ledger = []LedgerEntry{}
	}
	if s.results == nil {
		s.results = []CheckpointResult{}
	}
	if s.session.Status != StatusEnded {
		s.metrics.RecordOpened(ctx)
	}
	s.logger.Debug(ctx, "session resumed",
		zap.String("session_id", s.id),
		zap.String("snapshot_id", snap.SnapshotID),
		zap.String("status", string(s.session.Status)),
	)
	return s, nil
}

func checkSnapshot(snap Snapshot, queueLen int) error {
	if snap.SessionID == "" || snap.Session.ID != snap.SessionID {
		return fmt.Errorf("snapshot session id mismatch")
	}
	if !snap.Session.Status.Valid() {
		return fmt.Errorf("unknown status %q", snap.Session.Status)
	}
	if snap.Session.CurrentIndex < 0 || snap.Session.CurrentIndex > queueLen {
		return fmt.Errorf("cursor %d outside queue of %d", snap.Session.CurrentIndex, queueLen)
	}
	cursor := snap.Session.CurrentIndex
	blocked := len(openBlockers(snap.Ledger)) > 0
	switch snap.Session.Status {
	case StatusPreFlight:
		if cursor != 0 {
			return fmt.Errorf("pre-flight snapshot has cursor %d", cursor)
		}
	case StatusTesting, StatusBlocked:
		if cursor >= queueLen {
			return fmt.Errorf("%s snapshot has exhausted cursor %d of %d", snap.Session.Status, cursor, queueLen)
		}
	case StatusCompleted:
		if cursor != queueLen {
			return fmt.Errorf("completed snapshot has cursor %d of %d", cursor, queueLen)
		}
	}
	switch snap.Session.Status {
	case StatusBlocked:
		if !blocked {
			return fmt.Errorf("blocked snapshot has no open blockers")
		}
	case StatusPreFlight, StatusTesting, StatusCompleted:
		if blocked {
			return fmt.Errorf("%s snapshot has open blockers", snap.Session.Status)
		}
	}
	return nil
}

// ID returns the session identifier.
func (s *Store) ID() string {
	return s.id
}

// CompletePreFlight stores the pre-flight answers and starts testing.
func (s *Store) CompletePreFlight(ctx context.Context, answers map[string]string) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.complete_preflight", s.id)
	proj, _, err := s.commit(ctx, "complete_preflight", Event{Kind: EventCompletePreFlight, Answers: answers})
	s.finish(ctx, span, "complete_preflight", err)
	if err != nil {
		return Projection{}, err
	}
	s.logger.PreFlightCompleted(ctx, s.id, len(answers), proj.Status())
	if proj.Status() == StatusCompleted {
		s.metrics.RecordCompleted(ctx)
	}
	return proj, nil
}

// ApproveCheckpoint records a pass for the current checkpoint and advances.
func (s *Store) ApproveCheckpoint(ctx context.Context, notes string) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.approve", s.id)
	proj, res, err := s.commit(ctx, "approve", Event{Kind: EventApprove, Notes: strings.TrimSpace(notes)})
	s.finish(ctx, span, "approve", err)
	if err != nil {
		return Projection{}, err
	}
	s.metrics.RecordApproved(ctx, proj.Status())
	s.logger.CheckpointApproved(ctx, s.id, res.checkpoint, proj.Status())
	return proj, nil
}

// RejectCheckpoint appends feedback for the current checkpoint. A blocker
// holds the cursor and blocks the session; anything else advances.
func (s *Store) RejectCheckpoint(ctx context.Context, feedback FeedbackInput) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.reject", s.id)
	proj, res, err := s.commit(ctx, "reject", Event{Kind: EventReject, Feedback: feedback})
	s.finish(ctx, span, "reject", err)
	if err != nil {
		return Projection{}, err
	}
	s.metrics.RecordRejected(ctx, *res.item, proj.Status())
	s.logger.CheckpointRejected(ctx, s.id, *res.item, proj.Status())
	return proj, nil
}

// ResolveBlockers marks every open blocker resolved and resumes testing at
// the checkpoint that was blocked. Resolved entries stay in the ledger.
func (s *Store) ResolveBlockers(ctx context.Context) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.resolve_blockers", s.id)
	proj, res, err := s.commit(ctx, "resolve_blockers", Event{Kind: EventResolveBlockers})
	s.finish(ctx, span, "resolve_blockers", err)
	if err != nil {
		return Projection{}, err
	}
	s.logger.BlockersResolved(ctx, s.id, res.resolved, proj.Session.CurrentIndex)
	return proj, nil
}

// RestartSession returns the session to PRE_FLIGHT with an empty ledger.
// When resetTestData is set the test-data collaborator is signalled after the
// restart is committed; its failure is returned as a PersistenceError
// alongside the already-committed projection.
func (s *Store) RestartSession(ctx context.Context, resetTestData bool) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.restart", s.id)
	proj, _, err := s.commit(ctx, "restart", Event{Kind: EventRestart, ResetTestData: resetTestData})
	if err != nil {
		s.finish(ctx, span, "restart", err)
		return Projection{}, err
	}
	s.logger.Restarted(ctx, s.id, resetTestData)

	if resetTestData {
		hctx, token := s.beginHandoff(ctx)
		rerr := s.resetter.ResetTestData(hctx, s.id)
		abandoned := s.endHandoff(token)
		if abandoned {
			if rerr == nil {
				rerr = ErrHandoffAbandoned
			} else {
				rerr = fmt.Errorf("%w: %w", ErrHandoffAbandoned, rerr)
			}
		}
		if rerr != nil {
			err = persistenceError("restart", s.id, describeHandoffError(hctx, rerr))
			s.metrics.RecordResetFailure(ctx)
			s.logger.Error(ctx, "test data reset failed", rerr, zap.String("session_id", s.id))
		}
	}
	s.finish(ctx, span, "restart", err)
	return proj, err
}

// SaveProgress snapshots the session and hands the snapshot to the gateway.
// Workflow state is unchanged whatever the outcome.
func (s *Store) SaveProgress(ctx context.Context, notes string) (SaveResult, error) {
	ctx, span := StartSpan(ctx, "session.save", s.id)
	result, err := s.save(ctx, notes)
	s.finish(ctx, span, "save", err)
	return result, err
}

func (s *Store) save(ctx context.Context, notes string) (SaveResult, error) {
	_, res, err := s.commit(ctx, "save", Event{Kind: EventSave, Notes: strings.TrimSpace(notes)})
	if err != nil {
		return SaveResult{}, err
	}
	if s.gateway == nil {
		return SaveResult{}, persistenceError("save", s.id, ErrNoGateway)
	}
	snap := *res.snapshot

	hctx, token := s.beginHandoff(ctx)
	start := time.Now()
	err = s.gateway.Save(hctx, snap)
	duration := time.Since(start)
	abandoned := s.endHandoff(token)
	s.metrics.RecordSave(ctx, duration, err)

	if abandoned {
		// The session ended while the save was in flight; drop the result.
		return SaveResult{}, persistenceError("save", s.id, ErrSaveAbandoned)
	}
	if err != nil {
		s.logger.Error(ctx, "save failed", err, zap.String("session_id", s.id))
		return SaveResult{}, persistenceError("save", s.id, describeHandoffError(hctx, err))
	}

	result := SaveResult{SnapshotID: snap.SnapshotID, SavedAt: snap.SavedAt, Version: snap.Version}
	s.mu.Lock()
	if s.lastSave == nil || !result.SavedAt.Before(s.lastSave.SavedAt) {
		r := result
		s.lastSave = &r
	}
	s.mu.Unlock()
	s.logger.Saved(ctx, s.id, snap.SnapshotID, duration)
	return result, nil
}

// EndSession terminates the session. In-flight saves are cancelled and
// their results discarded; observers receive the final projection and are
// then dropped.
func (s *Store) EndSession(ctx context.Context) (Projection, error) {
	ctx, span := StartSpan(ctx, "session.end", s.id)
	proj, _, err := s.commit(ctx, "end", Event{Kind: EventEnd})
	s.finish(ctx, span, "end", err)
	if err != nil {
		return Projection{}, err
	}
	abandoned := s.abandonHandoffs()

	s.obsMu.Lock()
	clear(s.observers)
	s.obsMu.Unlock()

	s.metrics.RecordEnded(ctx)
	s.logger.Ended(ctx, s.id, proj.Session.Summary, abandoned)
	return proj, nil
}

// FeedbackFormStructure returns the rejection form schema. It is callable in
// every state and never mutates the session.
func (s *Store) FeedbackFormStructure(ctx context.Context) (FormStructure, error) {
	return BuildFormStructure(ctx, s.fields)
}

// Subscribe registers an observer. The returned func removes it.
// Subscribing to an ended session is a no-op.
func (s *Store) Subscribe(obs Observer) func() {
	if obs == nil || s.Status() == StatusEnded {
		return func() {}
	}
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// --- Read-only projections ---

// Projection returns the full read model.
func (s *Store) Projection() Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectLocked()
}

// Status returns the current status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Status
}

// Session returns a copy of the session aggregate.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// Current returns the checkpoint under the cursor, if any.
func (s *Store) Current() (Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.At(s.session.CurrentIndex)
}

// Progress returns cursor progress through the queue.
func (s *Store) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewProgress(s.session.CurrentIndex, s.queue.Len())
}

// Summary returns outcome counts.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Summary
}

// Blockers returns open blocker items.
func (s *Store) Blockers() []FeedbackItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openBlockers(s.ledger)
}

// Feedback returns every ledger item in acceptance order.
func (s *Store) Feedback() []FeedbackItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledgerItems(s.ledger)
}

// Ledger returns the ledger including resolution markers.
func (s *Store) Ledger() []LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LedgerEntry, len(s.ledger))
	for i, e := range s.ledger {
		out[i] = e.clone()
	}
	return out
}

// Results returns per-checkpoint verdicts in the order they were given.
func (s *Store) Results() []CheckpointResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CheckpointResult, len(s.results))
	copy(out, s.results)
	return out
}

// Checkpoints returns the queue contents.
func (s *Store) Checkpoints() []Checkpoint {
	return s.queue.Checkpoints()
}

// LastSave returns the acknowledgement of the most recent successful save.
func (s *Store) LastSave() (SaveResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSave == nil {
		return SaveResult{}, false
	}
	return *s.lastSave, true
}

// Snapshot builds a snapshot of the current state without persisting it.
func (s *Store) Snapshot(notes string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(s.now(), notes)
}

// --- internals ---

type applied struct {
	checkpoint Checkpoint
	item       *FeedbackItem
	resolved   int
	snapshot   *Snapshot
}

// commit runs one event through Next and applies the outcome atomically.
func (s *Store) commit(ctx context.Context, op string, ev Event) (Projection, applied, error) {
	if err := s.acquire(op); err != nil {
		return Projection{}, applied{}, err
	}
	defer s.writeMu.Unlock()

	s.mu.Lock()
	out, err := Next(s.stateLocked(), ev)
	if err != nil {
		s.mu.Unlock()
		return Projection{}, applied{}, s.tag(err)
	}
	res := s.applyLocked(ev, out)
	changed := !(len(out.Mutations) == 1 && out.Mutations[0] == MutTakeSnapshot)
	if changed {
		s.version++
	}
	proj := s.projectLocked()
	s.mu.Unlock()

	if changed {
		s.notify(proj)
	}
	return proj, res, nil
}

func (s *Store) acquire(op string) error {
	if s.config.ConcurrencyPolicy == PolicyReject {
		if !s.writeMu.TryLock() {
			return NewSessionError(CodeConcurrentModification, op, s.id,
				"another operation is being applied", nil)
		}
		return nil
	}
	s.writeMu.Lock()
	return nil
}

func (s *Store) stateLocked() State {
	return State{
		Status:       s.session.Status,
		Cursor:       s.session.CurrentIndex,
		QueueLen:     s.queue.Len(),
		OpenBlockers: len(openBlockers(s.ledger)),
	}
}

func (s *Store) applyLocked(ev Event, out Outcome) applied {
	now := s.now()
	cp, _ := s.queue.At(s.session.CurrentIndex)
	res := applied{checkpoint: cp}

	for _, m := range out.Mutations {
		switch m {
		case MutStoreAnswers:
			s.session.PreFlightAnswers = normalizeAnswers(ev.Answers)

		case MutRecordPass:
			s.results = append(s.results, CheckpointResult{
				CheckpointID: cp.ID,
				Index:        cp.Index,
				Verdict:      VerdictPassed,
				Notes:        ev.Notes,
				RecordedAt:   now,
			})

		case MutAppendFeedback:
			fb := ev.Feedback.Normalize()
			item := FeedbackItem{
				ID:              s.newID(),
				CheckpointID:    cp.ID,
				CheckpointIndex: cp.Index,
				Field:           fb.Field,
				Issue:           fb.Issue,
				Expected:        fb.Expected,
				Priority:        fb.Priority,
				Category:        fb.Category,
				CreatedAt:       now,
			}
			s.ledger = append(s.ledger, LedgerEntry{Item: item})
			s.results = append(s.results, CheckpointResult{
				CheckpointID: cp.ID,
				Index:        cp.Index,
				Verdict:      VerdictFailed,
				FeedbackID:   item.ID,
				RecordedAt:   now,
			})
			res.item = &item

		case MutResolveBlockers:
			for i := range s.ledger {
				e := &s.ledger[i]
				if e.Item.IsBlocker() && !e.Resolved {
					at := now
					e.Resolved = true
					e.ResolvedAt = &at
					res.resolved++
				}
			}

		case MutResetLedger:
			s.ledger = []LedgerEntry{}
			s.results = []CheckpointResult{}
			s.session.PreFlightAnswers = nil

		case MutTakeSnapshot:
			snap := s.snapshotLocked(now, ev.Notes)
			res.snapshot = &snap
		}
	}

	if res.snapshot == nil {
		s.session.Status = out.Status
		s.session.CurrentIndex = out.Cursor
		s.session.UpdatedAt = now
		s.session.Summary = computeSummary(s.ledger, s.results)
	}
	return res
}

func (s *Store) projectLocked() Projection {
	p := Projection{
		Version:  s.version,
		Session:  s.session.clone(),
		Progress: NewProgress(s.session.CurrentIndex, s.queue.Len()),
		Blockers: openBlockers(s.ledger),
		Feedback: ledgerItems(s.ledger),
		Results:  make([]CheckpointResult, len(s.results)),
	}
	copy(p.Results, s.results)
	if s.session.Status == StatusTesting || s.session.Status == StatusBlocked {
		if cp, ok := s.queue.At(s.session.CurrentIndex); ok {
			p.Current = &cp
		}
	}
	return p
}

func (s *Store) snapshotLocked(now time.Time, notes string) Snapshot {
	snap := Snapshot{
		SnapshotID: s.newID(),
		SessionID:  s.id,
		SavedAt:    now,
		Notes:      notes,
		Version:    s.version,
		Session:    s.session,
		Queue:      s.queue.Checkpoints(),
		Ledger:     s.ledger,
		Results:    s.results,
	}
	return snap.Clone()
}

func (s *Store) notify(p Projection) {
	s.obsMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for id := uint64(0); id < s.nextObs; id++ {
		if obs, ok := s.observers[id]; ok {
			observers = append(observers, obs)
		}
	}
	s.obsMu.Unlock()
	for _, obs := range observers {
		obs(p.clone())
	}
}

func (s *Store) beginHandoff(ctx context.Context) (context.Context, uint64) {
	var cancel context.CancelFunc
	if t := s.config.PersistTimeout; t > 0 {
		ctx, cancel = context.WithTimeout(ctx, t)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	token := s.nextPending
	s.nextPending++
	s.pending[token] = &handoff{cancel: cancel}
	return ctx, token
}

// endHandoff releases a hand-off and reports whether it was abandoned by EndSession.
func (s *Store) endHandoff(token uint64) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	h, ok := s.pending[token]
	if !ok {
		return false
	}
	delete(s.pending, token)
	h.cancel()
	return h.abandoned
}

func (s *Store) abandonHandoffs() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	n := 0
	for _, h := range s.pending {
		if !h.abandoned {
			h.abandoned = true
			h.cancel()
			n++
		}
	}
	return n
}

func (s *Store) tag(err error) error {
	var se *SessionError
	if errors.As(err, &se) && se.SessionID == "" {
		se.SessionID = s.id
	}
	return err
}

func (s *Store) finish(ctx context.Context, span trace.Span, op string, err error) {
	s.metrics.RecordOperation(ctx, op, err)
	endSpan(span, err)
}

func describeHandoffError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", err)
	}
	return err
}

func normalizeAnswers(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	return maps.Clone(in)
}
