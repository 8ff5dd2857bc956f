package adform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"classifieds_ad_publisher/generator"
)

type trail struct {
	mu     sync.Mutex
	states []SubmissionState
}

func (tr *trail) record(_, to SubmissionState) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, to)
}

func (tr *trail) get() []SubmissionState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]SubmissionState(nil), tr.states...)
}

func publishedFrom(d Draft) *Listing {
	return &Listing{
		ID:       "listing-1",
		SellerID: "seller-1",
		PostedAt: time.Date(2024, 5, 21, 8, 30, 0, 0, time.UTC),
		Currency: "GHS",
		Draft:    d,
	}
}

func TestSubmit_SafeVerdictPublishesAndResets(t *testing.T) {
	tr := &trail{}
	f := newFixture(t, OnTransition(tr.record))
	draft := fillAndWalk(t, f.m)
	listing := publishedFrom(draft)
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "brand new sealed").Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, "seller-1", draft).Return(listing, nil).Once()

	out, err := f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
	assert.Same(t, listing, out.Listing)
	assert.NoError(t, out.Err)
	assert.Equal(t, []SubmissionState{Moderating, Persisting, Succeeded}, tr.get())

	s := f.m.State()
	assert.Equal(t, StepCategory, s.Step)
	assert.Equal(t, NewDraft(), s.Draft)
	assert.Equal(t, Idle, s.Activity)
	assert.Equal(t, Succeeded, s.Submission)
	assert.Same(t, listing, s.Listing)
	f.mod.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestSubmit_RejectionKeepsDraftForRevision(t *testing.T) {
	tr := &trail{}
	f := newFixture(t, OnTransition(tr.record))
	draft := fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "brand new sealed").
		Return(generator.Verdict{Safe: false, Reason: "suspiciously low price for item"}).Once()

	out, err := f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Rejected, out.State)
	assert.Equal(t, "suspiciously low price for item", out.Reason)
	assert.Equal(t, []SubmissionState{Moderating, Rejected}, tr.get())

	s := f.m.State()
	assert.Equal(t, draft, s.Draft)
	assert.Equal(t, StepLocation, s.Step)
	assert.Equal(t, "suspiciously low price for item", s.RejectionReason)
	assert.Empty(t, s.Failure)
	assert.True(t, s.CanSubmit)
	f.store.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_ResubmitAfterEditModeratesAgain(t *testing.T) {
	f := newFixture(t)
	fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "brand new sealed").
		Return(generator.Verdict{Safe: false, Reason: "contains prohibited item"}).Once()

	out, err := f.m.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "contains prohibited item", out.Reason)

	require.NoError(t, f.m.SetField(FieldDescription, "sealed box, receipt available"))
	edited := f.m.State().Draft
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "sealed box, receipt available").
		Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, "seller-1", edited).Return(publishedFrom(edited), nil).Once()

	out, err = f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
	f.mod.AssertNumberOfCalls(t, "Moderate", 2)
	f.mod.AssertExpectations(t)
	assert.Empty(t, f.m.State().RejectionReason)
}

func TestSubmit_BlankReasonGetsGenericMessage(t *testing.T) {
	f := newFixture(t)
	fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(generator.Verdict{Safe: false, Reason: "  "}).Once()

	out, err := f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Rejected, out.State)
	assert.Equal(t, DefaultRejectionReason, out.Reason)
}

func TestSubmit_PersistenceFailureIsDistinctFromRejection(t *testing.T) {
	tr := &trail{}
	f := newFixture(t, OnTransition(tr.record))
	draft := fillAndWalk(t, f.m)
	storeErr := errors.New("redis: connection refused")
	f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, "seller-1", draft).Return(nil, storeErr).Once()

	out, err := f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, storeErr)
	assert.Empty(t, out.Reason)
	assert.Equal(t, []SubmissionState{Moderating, Persisting, Failed}, tr.get())

	s := f.m.State()
	assert.Equal(t, draft, s.Draft)
	assert.Equal(t, StepLocation, s.Step)
	assert.Empty(t, s.RejectionReason)
	assert.Contains(t, s.Failure, "connection refused")
	assert.True(t, s.CanSubmit, "seller can retry")
}

func TestSubmit_NilListingCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()

	out, err := f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Failed, out.State)
	assert.Error(t, out.Err)
}

func TestSubmit_SecondCallWhileInFlightIsRefused(t *testing.T) {
	for _, stage := range []string{"Moderating", "Persisting"} {
		t.Run(stage, func(t *testing.T) {
			f := newFixture(t)
			draft := fillAndWalk(t, f.m)
			started, release := make(chan struct{}), make(chan struct{})
			block := func(mock.Arguments) { close(started); <-release }

			modCall := f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(generator.Verdict{Safe: true})
			storeCall := f.store.On("Persist", mock.Anything, "seller-1", draft).Return(publishedFrom(draft), nil)
			if stage == "Moderating" {
				modCall.Run(block)
			} else {
				storeCall.Run(block)
			}

			first, err := f.m.SubmitAsync(context.Background())
			require.NoError(t, err)
			waitFor(t, started)

			_, err = f.m.SubmitAsync(context.Background())
			assert.ErrorIs(t, err, ErrBusy)
			_, err = f.m.Submit(context.Background())
			assert.ErrorIs(t, err, ErrBusy)
			assert.False(t, f.m.CanSubmit())
			assert.False(t, f.m.Retreat())
			assert.True(t, f.m.State().Submission.InFlight())

			close(release)
			out := <-first
			assert.Equal(t, Succeeded, out.State)
			f.mod.AssertNumberOfCalls(t, "Moderate", 1)
			f.store.AssertNumberOfCalls(t, "Persist", 1)
		})
	}
}

func TestSubmit_RefusedBeforeLastStep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.SetField(FieldTitle, "iPhone 15"))
	require.NoError(t, f.m.SetField(FieldCategory, "phones"))

	_, err := f.m.Submit(context.Background())

	assert.ErrorIs(t, err, ErrNotReady)
	f.mod.AssertNotCalled(t, "Moderate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CloseWhileModeratingDiscardsVerdict(t *testing.T) {
	f := newFixture(t)
	draft := fillAndWalk(t, f.m)
	started, release := make(chan struct{}), make(chan struct{})
	f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(started); <-release }).
		Return(generator.Verdict{Safe: true}).Once()

	done, err := f.m.SubmitAsync(context.Background())
	require.NoError(t, err)
	waitFor(t, started)
	f.m.Close()
	close(release)

	out := <-done
	assert.ErrorIs(t, out.Err, ErrStale)
	s := f.m.State()
	assert.Equal(t, draft, s.Draft)
	assert.Equal(t, NotSubmitting, s.Submission)
	assert.False(t, s.Submission.InFlight())
	assert.Equal(t, Idle, s.Activity)
	f.store.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)

	_, err = f.m.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmit_CloseWhilePersistingEndsAttempt(t *testing.T) {
	tr := &trail{}
	f := newFixture(t, OnTransition(tr.record))
	draft := fillAndWalk(t, f.m)
	started, release := make(chan struct{}), make(chan struct{})
	f.mod.On("Moderate", mock.Anything, mock.Anything, mock.Anything).Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, "seller-1", draft).
		Run(func(mock.Arguments) { close(started); <-release }).
		Return(publishedFrom(draft), nil).Once()

	done, err := f.m.SubmitAsync(context.Background())
	require.NoError(t, err)
	waitFor(t, started)
	f.m.Close()
	close(release)

	out := <-done
	assert.ErrorIs(t, out.Err, ErrStale)
	s := f.m.State()
	assert.Equal(t, NotSubmitting, s.Submission)
	assert.Equal(t, Idle, s.Activity)
	assert.Nil(t, s.Listing)
	assert.Equal(t, draft, s.Draft)
	assert.Equal(t, []SubmissionState{Moderating, Persisting, NotSubmitting}, tr.get())
}

func TestSubmit_NextAttemptClearsPreviousListing(t *testing.T) {
	f := newFixture(t)
	first := fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "brand new sealed").Return(generator.Verdict{Safe: true}).Once()
	f.store.On("Persist", mock.Anything, "seller-1", first).Return(publishedFrom(first), nil).Once()

	out, err := f.m.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, Succeeded, out.State)
	require.NotNil(t, f.m.State().Listing)

	fillAndWalk(t, f.m)
	f.mod.On("Moderate", mock.Anything, "iPhone 15", "brand new sealed").
		Return(generator.Verdict{Safe: false, Reason: "suspiciously low price for item"}).Once()

	out, err = f.m.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Rejected, out.State)
	s := f.m.State()
	assert.Equal(t, Rejected, s.Submission)
	assert.Nil(t, s.Listing)
	assert.Equal(t, "suspiciously low price for item", s.RejectionReason)
}
