package app

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"testing"

	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/config"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"
	"kickchoice/internal/penalty"
	"kickchoice/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memoryRuns struct {
	mu   sync.Mutex
	runs map[core.RunID]*run.Run
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: map[core.RunID]*run.Run{}}
}

func (m *memoryRuns) Save(_ context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id core.RunID) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	return r, nil
}

func (m *memoryRuns) List(_ context.Context, f ports.RunFilters) ([]run.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []run.Summary
	for _, r := range m.runs {
		if f.ModelName == "" || r.Manifest.ModelName == f.ModelName {
			out = append(out, r.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func testConfig() config.EstimationConfig {
	return config.EstimationConfig{
		Model:             "asc_only",
		Draws:             50,
		DrawMethod:        "halton",
		Seed:              1,
		MaxIterations:     100,
		GradientTolerance: 1e-6,
		Workers:           2,
		MaxConcurrentRuns: 1,
	}
}

// uniformShots cycles through the six zones, so every constant is zero at
// the optimum
func uniformShots(n int) *dataset.RawTable {
	records := make([][]string, n)
	for i := range records {
		records[i] = []string{strconv.Itoa(i%6 + 1)}
	}
	return dataset.NewRawTable([]string{penalty.ColumnChoice}, records)
}

func TestEstimationService_Estimate(t *testing.T) {
	repo := newMemoryRuns()
	svc := NewEstimationService(repo, testConfig())
	table := uniformShots(60)

	r, err := svc.Estimate(context.Background(), EstimateRequest{Table: table, DataSource: "uniform.csv"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, r.Status)
	assert.Equal(t, "asc_only", r.Manifest.ModelName)
	assert.Equal(t, CodeVersion, r.Manifest.CodeVersion)
	assert.Equal(t, r.Manifest.Fingerprint(), r.Fingerprint)

	res := r.Result
	require.NotNil(t, res)
	assert.Equal(t, "asc_only", res.ModelName)
	assert.True(t, res.Converged)
	assert.Equal(t, 60, res.NumObservations)
	assert.Equal(t, 4, res.NumParameters)
	assert.InDelta(t, 60*math.Log(1.0/6), res.LogLikelihood, 1e-6)
	asc1, ok := res.Estimate("ASC1")
	require.True(t, ok)
	assert.InDelta(t, 0, asc1.Value, 1e-4)

	assert.Equal(t, []string{penalty.ColumnChoice}, table.Headers, "request table must not be modified")

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, stored)

	list, err := svc.List(context.Background(), ports.RunFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
}

func TestEstimationService_Fingerprint(t *testing.T) {
	svc := NewEstimationService(nil, testConfig())
	ctx := context.Background()

	a, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(30)})
	require.NoError(t, err)
	b, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(30), DataSource: "elsewhere.csv"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	seed := uint64(99)
	c, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(30), Seed: &seed})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)

	d, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(36)})
	require.NoError(t, err)
	assert.NotEqual(t, a.Manifest.DataHash, d.Manifest.DataHash)
}

func TestEstimationService_RequestErrors(t *testing.T) {
	svc := NewEstimationService(newMemoryRuns(), testConfig())
	ctx := context.Background()

	_, err := svc.Estimate(ctx, EstimateRequest{})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = svc.Estimate(ctx, EstimateRequest{Model: "no_such_model", Table: uniformShots(12)})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = svc.Estimate(ctx, EstimateRequest{Table: uniformShots(12), DrawMethod: "sobol"})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestEstimationService_FailedRunIsStored(t *testing.T) {
	repo := newMemoryRuns()
	svc := NewEstimationService(repo, testConfig())
	table := uniformShots(12)
	table.Rows[3][penalty.ColumnChoice] = "9"

	r, err := svc.Estimate(context.Background(), EstimateRequest{Table: table})
	require.Error(t, err)
	require.NotNil(t, r)
	assert.Equal(t, run.StatusFailed, r.Status)
	assert.NotEmpty(t, r.Error)
	assert.Nil(t, r.Result)

	stored, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, stored.Status)
}

func TestEstimationService_CustomDefinition(t *testing.T) {
	svc := NewEstimationService(nil, testConfig())
	v, err := penalty.Lookup("asc_only")
	require.NoError(t, err)
	spec, err := v.Specification()
	require.NoError(t, err)
	def := spec.Definition()
	def.Name = "my_constants"

	r, err := svc.Estimate(context.Background(), EstimateRequest{Definition: &def, Table: uniformShots(24)})
	require.NoError(t, err)
	assert.Equal(t, "my_constants", r.Manifest.ModelName)
	assert.Equal(t, "my_constants", r.Result.ModelName)
	assert.Equal(t, 4, r.Result.NumParameters)
}

func TestEstimationService_Compare(t *testing.T) {
	svc := NewEstimationService(newMemoryRuns(), testConfig())
	ctx := context.Background()

	a, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(30)})
	require.NoError(t, err)
	b, err := svc.Estimate(ctx, EstimateRequest{Table: uniformShots(30)})
	require.NoError(t, err)

	cmp, err := svc.Compare(ctx, []core.RunID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, cmp.Rows, 2)

	_, err = svc.Compare(ctx, []core.RunID{a.ID})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = svc.Compare(ctx, []core.RunID{a.ID, core.NewRunID()})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEstimationService_WithoutPersistence(t *testing.T) {
	svc := NewEstimationService(nil, testConfig())
	_, err := svc.Get(context.Background(), core.NewRunID())
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	list, err := svc.List(context.Background(), ports.RunFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Len(t, svc.Models(), len(penalty.Names()))
}

type recordedEvents struct {
	mu     sync.Mutex
	events []run.Event
}

func (r *recordedEvents) Publish(e run.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestEstimationService_PublishesEvents(t *testing.T) {
	events := &recordedEvents{}
	svc := NewEstimationService(nil, testConfig()).WithEvents(events)

	ok, err := svc.Estimate(context.Background(), EstimateRequest{Table: uniformShots(12)})
	require.NoError(t, err)

	bad := uniformShots(12)
	bad.Rows[0][penalty.ColumnChoice] = "x"
	failed, err := svc.Estimate(context.Background(), EstimateRequest{Table: bad})
	require.Error(t, err)

	require.Len(t, events.events, 4)
	assert.Equal(t, run.EventStarted, events.events[0].Type)
	assert.Equal(t, run.EventCompleted, events.events[1].Type)
	assert.Equal(t, ok.ID, events.events[1].RunID)
	assert.Equal(t, run.EventFailed, events.events[3].Type)
	assert.Equal(t, failed.ID, events.events[3].RunID)
	assert.NotEmpty(t, events.events[3].Message)
}

type mockRunRepo struct {
	mock.Mock
}

func (m *mockRunRepo) Save(ctx context.Context, r *run.Run) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRunRepo) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*run.Run)
	return r, args.Error(1)
}

func (m *mockRunRepo) List(ctx context.Context, filters ports.RunFilters) ([]run.Summary, error) {
	args := m.Called(ctx, filters)
	s, _ := args.Get(0).([]run.Summary)
	return s, args.Error(1)
}

func TestEstimationService_SaveFailure(t *testing.T) {
	repo := &mockRunRepo{}
	repo.On("Save", mock.Anything, mock.AnythingOfType("*run.Run")).
		Return(errors.New(errors.CodeDatabaseError, "connection refused")).Once()
	events := &recordedEvents{}
	svc := NewEstimationService(repo, testConfig()).WithEvents(events)

	r, err := svc.Estimate(context.Background(), EstimateRequest{Table: uniformShots(12)})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	require.NotNil(t, r)
	assert.Equal(t, run.StatusCompleted, r.Status)
	require.Len(t, events.events, 1, "completion is not announced for an unsaved run")
	assert.Equal(t, run.EventStarted, events.events[0].Type)
	repo.AssertExpectations(t)
}
