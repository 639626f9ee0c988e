package labflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteEngine(t *testing.T) (*Engine, *SQLiteStore) {
	t.Helper()

	store, err := NewSQLiteInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := NewEngine(nil,
		WithEngineStore(store),
		WithEngineTxManager(NewSQLiteTxManager(store)),
	)

	return engine, store
}

func TestSQLiteStore_ExtractionSequencingScenario(t *testing.T) {
	engine, _ := newSQLiteEngine(t)

	runExtractionSequencingScenario(t, engine)
}

func TestSQLiteStore_DuplicateBarcode(t *testing.T) {
	ctx := context.Background()
	_, store := newSQLiteEngine(t)

	now := time.Now().UTC()
	sample := &Sample{Barcode: "BC-1", SampleTypeID: "blood", PatientID: "p-1", Status: SampleStatusCollected,
		CollectionDate: now, CreatedAt: now}
	require.NoError(t, store.CreateSample(ctx, sample))
	assert.NotZero(t, sample.ID)

	dup := *sample
	dup.ID = 0
	err := store.CreateSample(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicateBarcode)

	loaded, err := store.GetSampleByBarcode(ctx, "BC-1")
	require.NoError(t, err)
	assert.Equal(t, sample.ID, loaded.ID)

	_, err = store.GetSampleByBarcode(ctx, "BC-2")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSQLiteStore_OneCurrentStatePerSection(t *testing.T) {
	ctx := context.Background()
	engine, store := newSQLiteEngine(t)

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))
	item := registerItem(t, engine, "m-dna")
	collectSample(t, engine, "BC-0100", item.ID)

	state, err := engine.EnterByItem(ctx, tech, item.ID, "Extraction")
	require.NoError(t, err)

	now := time.Now().UTC()
	err = store.CreateState(ctx, &AcceptanceItemState{
		AcceptanceItemID: item.ID,
		WorkflowID:       state.WorkflowID,
		SectionID:        "Extraction",
		Status:           StateStatusWaiting,
		Parameters:       []CapturedParameter{},
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestSQLiteStore_SampleLinks(t *testing.T) {
	ctx := context.Background()
	engine, store := newSQLiteEngine(t)

	require.NoError(t, engine.RegisterWorkflow(ctx, admin, dnaWorkflow(t)))
	item := registerItem(t, engine, "m-dna")
	first := collectSample(t, engine, "BC-0200", item.ID)
	second := collectSample(t, engine, "BC-0201", item.ID)

	active, err := store.GetActiveSampleLinks(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].SampleID)

	byBarcode, err := store.GetActiveSampleLinksByBarcode(ctx, first.Barcode)
	require.NoError(t, err)
	assert.Empty(t, byBarcode)

	loaded, err := store.GetAcceptanceItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []ItemPatient{{PatientID: "p-1", Main: true}}, loaded.Patients)
}
