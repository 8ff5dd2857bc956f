package adform

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"classifieds_ad_publisher/generator"
	"classifieds_ad_publisher/metrics"
)

// DescriptionGenerator pre-fills the description from title and category.
type DescriptionGenerator interface {
	GenerateDescription(ctx context.Context, title, category string) generator.Generation
}

// Moderator gates submission. Implementations must not fail; see generator.Moderator.
type Moderator interface {
	Moderate(ctx context.Context, title, description string) generator.Verdict
}

// Persister turns an accepted draft into a published Listing.
type Persister interface {
	Persist(ctx context.Context, sellerID string, draft Draft) (*Listing, error)
}

// Activity is the async work a Machine is busy with. Only one runs at a time.
type Activity int

const (
	Idle Activity = iota
	GeneratingDescription
	Submitting
)

func (a Activity) String() string {
	switch a {
	case GeneratingDescription:
		return "generating_description"
	case Submitting:
		return "submitting"
	}
	return "idle"
}

func (a Activity) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

type Option func(*Machine)

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Machine) { m.metrics = mm }
}

// OnTransition registers fn to observe submission state changes. It runs outside
// the Machine's lock, in transition order.
func OnTransition(fn func(from, to SubmissionState)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// Machine owns one authoring session: the draft, the step cursor and the
// single-flight slot shared by generation and submission.
type Machine struct {
	id       string
	sellerID string

	gen   DescriptionGenerator
	mod   Moderator
	store Persister

	logger       *zap.Logger
	metrics      *metrics.Manager
	onTransition func(from, to SubmissionState)

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	draft            Draft
	step             Step
	activity         Activity
	submission       SubmissionState
	epoch            uint64
	closed           bool
	rejection        string
	failure          error
	listing          *Listing
	generationFailed bool
}

func New(id, sellerID string, gen DescriptionGenerator, mod Moderator, store Persister, opts ...Option) (*Machine, error) {
	if gen == nil || mod == nil || store == nil {
		return nil, errors.New("adform: generator, moderator and persister are required")
	}
	m := &Machine{
		id:       id,
		sellerID: sellerID,
		gen:      gen,
		mod:      mod,
		store:    store,
		logger:   zap.NewNop(),
		draft:    NewDraft(),
		step:     StepCategory,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("session_id", id), zap.String("seller_id", sellerID))
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

func (m *Machine) ID() string       { return m.id }
func (m *Machine) SellerID() string { return m.sellerID }

// SetField writes one draft field. It never changes the step.
func (m *Machine) SetField(f Field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.draft.set(f, value)
}

// CanAdvance reports whether the current step's required fields are filled.
func (m *Machine) CanAdvance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canAdvanceLocked()
}

func (m *Machine) canAdvanceLocked() bool {
	return len(m.draft.Missing(m.step)) == 0
}

// CanSubmit reports whether Submit would be accepted right now.
func (m *Machine) CanSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canSubmitLocked()
}

func (m *Machine) canSubmitLocked() bool {
	return !m.closed && m.activity == Idle && m.step == StepLocation && m.draft.Complete()
}

// Advance moves to the next step if the current one is valid. A refused move
// is a no-op and returns false.
func (m *Machine) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.activity == Submitting || m.step >= StepLocation || !m.canAdvanceLocked() {
		return false
	}
	m.step++
	return true
}

// Retreat moves back one step, keeping every field value.
func (m *Machine) Retreat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.activity == Submitting || m.step <= StepCategory {
		return false
	}
	m.step--
	return true
}

// RequestGeneration fills the description from the assist backend and blocks
// until the result is applied.
func (m *Machine) RequestGeneration(ctx context.Context) error {
	done, err := m.RequestGenerationAsync(ctx)
	if err != nil {
		return err
	}
	return <-done
}

// RequestGenerationAsync reserves the busy slot and runs the call in the
// background. Refusals (ErrBusy, ErrNotReady, ErrClosed) are returned at once;
// the channel yields nil once the description is applied, or ErrStale.
func (m *Machine) RequestGenerationAsync(ctx context.Context) (<-chan error, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.activity != Idle {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	title, category := strings.TrimSpace(m.draft.Title), strings.TrimSpace(m.draft.Category)
	if title == "" || category == "" {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	m.activity = GeneratingDescription
	epoch := m.epoch
	m.mu.Unlock()

	callCtx, release := m.bind(ctx)
	done := make(chan error, 1)
	go func() {
		defer release()
		done <- m.applyGeneration(epoch, m.gen.GenerateDescription(callCtx, title, category))
	}()
	return done, nil
}

func (m *Machine) applyGeneration(epoch uint64, res generator.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activity == GeneratingDescription {
		m.activity = Idle
	}
	if m.closed || m.epoch != epoch {
		m.logger.Debug("dropping description that arrived after the session moved on")
		return ErrStale
	}
	m.draft.Description = res.Text
	m.generationFailed = res.Fallback
	return nil
}

// Close abandons the session. In-flight calls are cancelled and any result
// that still arrives is discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.epoch++
	m.cancel()
	m.logger.Info("authoring session closed", zap.Stringer("step", m.step), zap.Stringer("activity", m.activity))
}

// bind derives a context that is also cancelled when the session closes.
func (m *Machine) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// State is a read-only view of the session for the UI.
type State struct {
	SessionID        string          `json:"session_id"`
	Step             Step            `json:"step"`
	Draft            Draft           `json:"draft"`
	Activity         Activity        `json:"activity"`
	Submission       SubmissionState `json:"submission"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	Failure          string          `json:"failure,omitempty"`
	Listing          *Listing        `json:"listing,omitempty"`
	GenerationFailed bool            `json:"generation_failed"`
	CanAdvance       bool            `json:"can_advance"`
	CanSubmit        bool            `json:"can_submit"`
	Closed           bool            `json:"closed"`
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		SessionID:        m.id,
		Step:             m.step,
		Draft:            m.draft,
		Activity:         m.activity,
		Submission:       m.submission,
		RejectionReason:  m.rejection,
		Listing:          m.listing,
		GenerationFailed: m.generationFailed,
		CanAdvance:       m.canAdvanceLocked(),
		CanSubmit:        m.canSubmitLocked(),
		Closed:           m.closed,
	}
	if m.failure != nil {
		s.Failure = m.failure.Error()
	}
	return s
}
