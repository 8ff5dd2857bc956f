package adform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"classifieds_ad_publisher/generator"
)

type MockGenerator struct{ mock.Mock }

func (m *MockGenerator) GenerateDescription(ctx context.Context, title, category string) generator.Generation {
	args := m.Called(ctx, title, category)
	return args.Get(0).(generator.Generation)
}

type MockModerator struct{ mock.Mock }

func (m *MockModerator) Moderate(ctx context.Context, title, description string) generator.Verdict {
	args := m.Called(ctx, title, description)
	return args.Get(0).(generator.Verdict)
}

type MockPersister struct{ mock.Mock }

func (m *MockPersister) Persist(ctx context.Context, sellerID string, draft Draft) (*Listing, error) {
	args := m.Called(ctx, sellerID, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Listing), args.Error(1)
}

type fixture struct {
	gen   *MockGenerator
	mod   *MockModerator
	store *MockPersister
	m     *Machine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{gen: new(MockGenerator), mod: new(MockModerator), store: new(MockPersister)}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m, err := New("session-1", "seller-1", f.gen, f.mod, f.store, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	f.m = m
	return f
}

// iphoneDraft is the worked example used across submission tests.
var iphoneDraft = map[Field]string{
	FieldTitle:       "iPhone 15",
	FieldCategory:    "phones",
	FieldDescription: "brand new sealed",
	FieldPrice:       "18500",
	FieldCity:        "Circle",
}

// fillAndWalk fills the iPhone draft and walks the form to the location step.
func fillAndWalk(t *testing.T, m *Machine) Draft {
	t.Helper()
	for _, f := range []Field{FieldTitle, FieldCategory} {
		require.NoError(t, m.SetField(f, iphoneDraft[f]))
	}
	require.True(t, m.Advance())
	for _, f := range []Field{FieldDescription, FieldPrice} {
		require.NoError(t, m.SetField(f, iphoneDraft[f]))
	}
	require.True(t, m.Advance())
	require.NoError(t, m.SetField(FieldCity, iphoneDraft[FieldCity]))
	require.Equal(t, StepLocation, m.State().Step)
	return m.State().Draft
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for collaborator call")
	}
}
