package adform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("classifieds_ad_publisher/adform")

// SubmissionState tracks one submission attempt:
//
//	NotSubmitting -> Moderating -> Rejected
//	                            -> Persisting -> Failed | Succeeded
type SubmissionState int

const (
	NotSubmitting SubmissionState = iota
	Moderating
	Rejected
	Persisting
	Failed
	Succeeded
)

func (s SubmissionState) String() string {
	switch s {
	case Moderating:
		return "moderating"
	case Rejected:
		return "rejected"
	case Persisting:
		return "persisting"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	}
	return "not_submitting"
}

func (s SubmissionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// InFlight reports whether an attempt is still running.
func (s SubmissionState) InFlight() bool { return s == Moderating || s == Persisting }

// Outcome is the result of a finished attempt. Rejected carries the reason for
// the seller to fix; Failed carries the infrastructure error to retry on.
type Outcome struct {
	State   SubmissionState
	Reason  string
	Listing *Listing
	Err     error
}

// Submit runs moderation and, on a safe verdict, persistence. It blocks until
// the attempt finishes.
func (m *Machine) Submit(ctx context.Context) (Outcome, error) {
	done, err := m.SubmitAsync(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return <-done, nil
}

// SubmitAsync reserves the busy slot and runs the attempt in the background.
// A second call while an attempt is in flight gets ErrBusy.
func (m *Machine) SubmitAsync(ctx context.Context) (<-chan Outcome, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.activity != Idle {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	if m.step != StepLocation || !m.draft.Complete() {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	snapshot := m.draft
	epoch := m.epoch
	m.activity = Submitting
	m.rejection = ""
	m.failure = nil
	m.listing = nil
	fire := m.moveLocked(Moderating)
	m.mu.Unlock()
	fire()

	callCtx, release := m.bind(ctx)
	done := make(chan Outcome, 1)
	go func() {
		defer release()
		done <- m.runSubmission(callCtx, epoch, snapshot)
	}()
	return done, nil
}

func (m *Machine) runSubmission(ctx context.Context, epoch uint64, d Draft) Outcome {
	ctx, span := tracer.Start(ctx, "adform.Submit")
	defer span.End()

	verdict := m.mod.Moderate(ctx, d.Title, d.Description)
	span.SetAttributes(attribute.Bool("moderation.safe", verdict.Safe))

	m.mu.Lock()
	if m.staleLocked(epoch) {
		return m.abandonLocked(Outcome{State: Moderating, Err: ErrStale})
	}
	if !verdict.Safe {
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = DefaultRejectionReason
		}
		m.rejection = reason
		m.activity = Idle
		fire := m.moveLocked(Rejected)
		m.mu.Unlock()
		fire()
		return Outcome{State: Rejected, Reason: reason}
	}
	fire := m.moveLocked(Persisting)
	m.mu.Unlock()
	fire()

	listing, err := m.store.Persist(ctx, m.sellerID, d)
	if err == nil && listing == nil {
		err = errors.New("persister returned no listing")
	}

	m.mu.Lock()
	if m.staleLocked(epoch) {
		return m.abandonLocked(Outcome{State: Persisting, Listing: listing, Err: ErrStale})
	}
	m.activity = Idle
	if err != nil {
		span.RecordError(err)
		failure := fmt.Errorf("persist listing: %w", err)
		m.failure = failure
		fire := m.moveLocked(Failed)
		m.mu.Unlock()
		fire()
		m.logger.Warn("listing persistence failed", zap.Error(err))
		return Outcome{State: Failed, Err: failure}
	}

	// The draft now lives on as the listing; start the next session fresh.
	m.listing = listing
	m.draft = NewDraft()
	m.step = StepCategory
	m.generationFailed = false
	m.epoch++
	fire = m.moveLocked(Succeeded)
	m.mu.Unlock()
	fire()
	m.logger.Info("listing published", zap.String("listing_id", listing.ID))
	return Outcome{State: Succeeded, Listing: listing}
}

// abandonLocked ends an attempt whose session moved on: the busy slot is freed
// and the submission goes back to NotSubmitting. It releases the lock.
func (m *Machine) abandonLocked(out Outcome) Outcome {
	m.activity = Idle
	fire := m.moveLocked(NotSubmitting)
	m.mu.Unlock()
	fire()
	return out
}

func (m *Machine) staleLocked(epoch uint64) bool {
	return m.closed || m.epoch != epoch
}

// moveLocked records a transition; the returned func reports it and must be
// called after the lock is released.
func (m *Machine) moveLocked(to SubmissionState) func() {
	from := m.submission
	m.submission = to
	return func() {
		m.logger.Debug("submission transition", zap.Stringer("from", from), zap.Stringer("to", to))
		m.metrics.Submission(to.String())
		if m.onTransition != nil {
			m.onTransition(from, to)
		}
	}
}
